package common

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EntityID identifies an entity inside one authoritative process
type EntityID uint32

// String formats the id as it appears on the wire
func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseEntityID parses an entity id field
func ParseEntityID(s string) (EntityID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Errorf("invalid entity id %q", s)
	}
	return EntityID(v), nil
}

// InstanceID tags one game server process, from launch to shutdown
type InstanceID string

// GenInstanceID generates a new random instance id
func GenInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// IsNil returns if InstanceID is nil
func (id InstanceID) IsNil() bool {
	return id == ""
}
