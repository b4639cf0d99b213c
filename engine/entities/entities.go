// Package entities implements the entity variants of the shooter: players, pickups,
// weapon drops and ragdolls.
package entities

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/proto"
)

// Type tags carried in Data_InitializeEntity
const (
	TypePlayerAvatar = "PlayerAvatar"
	TypePickup       = "Pickup"
	TypeWeaponDrop   = "WeaponDrop"
	TypeRagdoll      = "Ragdoll"
)

// SpawnPoint is where new players appear
var SpawnPoint = entity.Vector3{X: 0, Y: 5, Z: 0}

// Register registers every variant and its RPCs in ts
func Register(ts *entity.TypeSet) {
	registerPlayerAvatar(ts)
	registerPickup(ts)
	registerWeaponDrop(ts)
	registerRagdoll(ts)
}

// NewTypeSet returns a TypeSet with every variant registered
func NewTypeSet() *entity.TypeSet {
	ts := entity.NewTypeSet()
	Register(ts)
	return ts
}

func expectFields(typeName string, fields []string, n int) error {
	if len(fields) != n {
		return errors.Wrapf(proto.ErrMalformedMessage, "%s: expect %d fields, got %d", typeName, n, len(fields))
	}
	return nil
}
