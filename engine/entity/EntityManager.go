package entity

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/gwutils"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

var (
	// ErrEntityNotFound is returned for ids that are not in the registry
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnknownType is returned for type tags without a registered type
	ErrUnknownType = errors.New("unknown entity type")
	// ErrNotAuthoritative is returned when a mirror tries to allocate ids, or an authority tries to mirror
	ErrNotAuthoritative = errors.New("registry is not authoritative")
	// ErrDuplicateID is returned when a mirror receives an id it already holds
	ErrDuplicateID = errors.New("duplicate entity id")
)

func errOwnerChange(b *Base, conn transport.ConnectionID) error {
	return errors.Errorf("%s: owner %d cannot change to %d", b, b.owner, conn)
}

// Registry maps entity ids to entities. An authoritative registry allocates ids;
// a mirror registry only holds entities announced by the authority.
type Registry struct {
	types         *TypeSet
	authoritative bool
	localConn     transport.ConnectionID

	entities       EntityMap
	entitiesByType map[string]EntityMap
	lastID         common.EntityID

	tombstones    []common.EntityID
	tombstoneNext int
	destroyed     common.EntityIDSet
}

func newRegistry(types *TypeSet, authoritative bool) *Registry {
	return &Registry{
		types:          types,
		authoritative:  authoritative,
		localConn:      transport.NoConnection,
		entities:       EntityMap{},
		entitiesByType: map[string]EntityMap{},
		tombstones:     make([]common.EntityID, 0, consts.DESTROYED_ENTITY_MEMORY),
		destroyed:      common.EntityIDSet{},
	}
}

// NewAuthoritative creates the registry of a game server
func NewAuthoritative(types *TypeSet) *Registry {
	return newRegistry(types, true)
}

// NewMirror creates the registry of a client
func NewMirror(types *TypeSet) *Registry {
	return newRegistry(types, false)
}

func (r *Registry) String() string {
	kind := "Mirror"
	if r.authoritative {
		kind = "Authority"
	}
	return fmt.Sprintf("Registry<%s %d entities>", kind, len(r.entities))
}

// IsAuthoritative reports whether the registry allocates ids
func (r *Registry) IsAuthoritative() bool {
	return r.authoritative
}

// Types returns the type set of the registry
func (r *Registry) Types() *TypeSet {
	return r.types
}

// SetLocalConnection sets the connection id the authority assigned to this mirror;
// entities it owns are seen from the Client perspective
func (r *Registry) SetLocalConnection(conn transport.ConnectionID) {
	r.localConn = conn
	for _, e := range r.entities {
		b := e.base()
		if b.IsOwnedBy(conn) {
			b.perspective = Client
		} else {
			b.perspective = Peer
		}
	}
}

// LocalConnection returns the connection id set by SetLocalConnection
func (r *Registry) LocalConnection() transport.ConnectionID {
	return r.localConn
}

// allocID returns the next id, wrapping around and skipping live ids
func (r *Registry) allocID() (common.EntityID, error) {
	if uint64(len(r.entities)) >= math.MaxUint32 {
		return 0, errors.New("entity ids exhausted")
	}
	for {
		if r.lastID == math.MaxUint32 {
			r.lastID = 0
		}
		r.lastID++
		if _, ok := r.entities[r.lastID]; !ok {
			return r.lastID, nil
		}
	}
}

func (r *Registry) newEntity(id common.EntityID, typeName string, fields []string, perspective Perspective) (Entity, error) {
	desc := r.types.Get(typeName)
	if desc == nil {
		return nil, errors.Wrapf(ErrUnknownType, "%q", typeName)
	}
	e := desc.factory()
	e.base().init(id, typeName, perspective)
	if err := e.Initialize(fields); err != nil {
		return nil, errors.Wrapf(err, "initialize %s<%s>", typeName, id)
	}
	return e, nil
}

func (r *Registry) put(e Entity) {
	r.entities.Add(e)
	etype := e.TypeName()
	if entities, ok := r.entitiesByType[etype]; ok {
		entities.Add(e)
	} else {
		r.entitiesByType[etype] = EntityMap{e.ID(): e}
	}
	if r.destroyed.Contains(e.ID()) {
		r.destroyed.Del(e.ID())
	}
	if consts.DEBUG_ENTITIES {
		gwlog.Debugf("%s: entity %s created, owner %d", r, e, e.Owner())
	}
}

// Create allocates an id and creates an entity from its initialize fields. Only
// authoritative registries can create.
func (r *Registry) Create(typeName string, fields []string) (Entity, error) {
	if !r.authoritative {
		return nil, errors.Wrapf(ErrNotAuthoritative, "create %s", typeName)
	}
	id, err := r.allocID()
	if err != nil {
		return nil, err
	}
	e, err := r.newEntity(id, typeName, fields, Server)
	if err != nil {
		return nil, err
	}
	r.put(e)
	return e, nil
}

// Mirror creates an entity with an id received from the authority
func (r *Registry) Mirror(id common.EntityID, typeName string, fields []string) (Entity, error) {
	if r.authoritative {
		return nil, errors.Wrapf(ErrNotAuthoritative, "mirror %s<%s> on an authority", typeName, id)
	}
	if ex := r.entities.Get(id); ex != nil {
		return nil, errors.Wrapf(ErrDuplicateID, "%s already exists", ex)
	}
	e, err := r.newEntity(id, typeName, fields, Peer)
	if err != nil {
		return nil, err
	}
	if e.base().IsOwnedBy(r.localConn) {
		e.base().perspective = Client
	}
	r.put(e)
	return e, nil
}

// MirrorRecord mirrors an entity from its initialize record
func (r *Registry) MirrorRecord(rec proto.EntityRecord) (Entity, error) {
	return r.Mirror(rec.ID, rec.Type, rec.Fields)
}

// Get returns the entity of id, or ErrEntityNotFound
func (r *Registry) Get(id common.EntityID) (Entity, error) {
	e := r.entities.Get(id)
	if e == nil {
		return nil, errors.Wrapf(ErrEntityNotFound, "entity %s", id)
	}
	return e, nil
}

// ApplyUpdate applies update fields to entity id
func (r *Registry) ApplyUpdate(id common.EntityID, fields []string) error {
	e, err := r.Get(id)
	if err != nil {
		return err
	}
	return e.ApplyUpdate(fields)
}

// Destroy removes entity id: its timers are cancelled, OnDestroy runs and the id is
// remembered as recently destroyed
func (r *Registry) Destroy(id common.EntityID) error {
	e, err := r.Get(id)
	if err != nil {
		return err
	}
	b := e.base()
	gwutils.RunPanicless(e.OnDestroy)
	b.clearTimers()
	b.destroyed = true

	r.entities.Del(id)
	if entities, ok := r.entitiesByType[e.TypeName()]; ok {
		entities.Del(id)
	}
	r.remember(id)
	if consts.DEBUG_ENTITIES {
		gwlog.Debugf("%s: entity %s destroyed", r, e)
	}
	return nil
}

func (r *Registry) remember(id common.EntityID) {
	if len(r.tombstones) < cap(r.tombstones) {
		r.tombstones = append(r.tombstones, id)
	} else {
		r.destroyed.Del(r.tombstones[r.tombstoneNext])
		r.tombstones[r.tombstoneNext] = id
		r.tombstoneNext = (r.tombstoneNext + 1) % len(r.tombstones)
	}
	r.destroyed.Add(id)
}

// WasDestroyed reports whether id belongs to a recently destroyed entity
func (r *Registry) WasDestroyed(id common.EntityID) bool {
	return r.destroyed.Contains(id)
}

// DestroyOwnedBy destroys every entity owned by conn and returns their ids
func (r *Registry) DestroyOwnedBy(conn transport.ConnectionID) []common.EntityID {
	var ids []common.EntityID
	for _, e := range r.entities.Sorted() {
		if e.base().IsOwnedBy(conn) {
			ids = append(ids, e.ID())
		}
	}
	for _, id := range ids {
		r.Destroy(id)
	}
	return ids
}

// Clear destroys every entity
func (r *Registry) Clear() {
	for _, id := range r.IDs() {
		r.Destroy(id)
	}
}

// Len returns the number of entities
func (r *Registry) Len() int {
	return len(r.entities)
}

// IDs returns all entity ids in ascending order
func (r *Registry) IDs() []common.EntityID {
	ids := make([]common.EntityID, 0, len(r.entities))
	for _, e := range r.entities.Sorted() {
		ids = append(ids, e.ID())
	}
	return ids
}

// Traverse calls cb for every entity in id order
func (r *Registry) Traverse(cb func(e Entity)) {
	for _, e := range r.entities.Sorted() {
		cb(e)
	}
}

// ByType returns the entities of a type in id order
func (r *Registry) ByType(typeName string) []Entity {
	return r.entitiesByType[typeName].Sorted()
}

// Record returns the initialize record of e
func Record(e Entity) proto.EntityRecord {
	return proto.EntityRecord{ID: e.ID(), Type: e.TypeName(), Fields: e.SerializeInitialize()}
}

// Records returns the initialize records of all entities in id order
func (r *Registry) Records() []proto.EntityRecord {
	records := make([]proto.EntityRecord, 0, len(r.entities))
	r.Traverse(func(e Entity) {
		records = append(records, Record(e))
	})
	return records
}
