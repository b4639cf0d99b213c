// Package world describes the static items a game server places in its world on start
package world

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/entities"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"gopkg.in/yaml.v3"
)

// PickupSpec places one pickup
type PickupSpec struct {
	Kind            entities.PickupKind `yaml:"kind"`
	Prefab          int                 `yaml:"prefab"`
	Position        entity.Vector3      `yaml:"position"`
	Amount          int                 `yaml:"amount"`
	Respawn         time.Duration       `yaml:"respawn"`
	DestroyOnPickup bool                `yaml:"destroyOnPickup"`
}

// WeaponDropSpec places one weapon drop
type WeaponDropSpec struct {
	Prefab   int            `yaml:"prefab"`
	Position entity.Vector3 `yaml:"position"`
	Rotation entity.Vector3 `yaml:"rotation"`
	Ammo     int            `yaml:"ammo"`
}

// Layout is the content of a world file
type Layout struct {
	Pickups     []PickupSpec     `yaml:"pickups"`
	WeaponDrops []WeaponDropSpec `yaml:"weaponDrops"`
}

// Default returns the layout used when no world file is configured
func Default() *Layout {
	return &Layout{
		Pickups: []PickupSpec{
			{Kind: entities.PickupHealth, Prefab: 0, Position: entity.Vector3{X: 10, Y: 1, Z: 10}, Amount: 25, Respawn: consts.PICKUP_RESPAWN_DELAY},
			{Kind: entities.PickupHealth, Prefab: 0, Position: entity.Vector3{X: -10, Y: 1, Z: -10}, Amount: 25, Respawn: consts.PICKUP_RESPAWN_DELAY},
			{Kind: entities.PickupAmmo, Prefab: 1, Position: entity.Vector3{X: 10, Y: 1, Z: -10}, Amount: 30, Respawn: consts.PICKUP_RESPAWN_DELAY},
			{Kind: entities.PickupAmmo, Prefab: 1, Position: entity.Vector3{X: -10, Y: 1, Z: 10}, Amount: 30, Respawn: consts.PICKUP_RESPAWN_DELAY},
		},
		WeaponDrops: []WeaponDropSpec{
			{Prefab: 2, Position: entity.Vector3{X: 0, Y: 1, Z: 20}, Ammo: 60},
		},
	}
}

// Decode reads a layout from r and validates it
func Decode(r io.Reader) (*Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode world layout failed")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Load reads the layout file at path
func Load(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open world layout failed")
	}
	defer f.Close()
	l, err := Decode(f)
	return l, errors.Wrapf(err, "%s", path)
}

// Validate checks every item and fills defaults
func (l *Layout) Validate() error {
	for i := range l.Pickups {
		p := &l.Pickups[i]
		if _, err := entities.ParsePickupKind(string(p.Kind)); err != nil {
			return errors.Wrapf(err, "pickup #%d", i)
		}
		if p.Amount <= 0 {
			p.Amount = 25
		}
		if p.Respawn <= 0 {
			p.Respawn = consts.PICKUP_RESPAWN_DELAY
		}
	}
	for i, w := range l.WeaponDrops {
		if w.Ammo < 0 {
			return errors.Errorf("weapon drop #%d: negative ammo", i)
		}
	}
	return nil
}

// Spawn creates every item of the layout in registry and returns their ids in order
func (l *Layout) Spawn(registry *entity.Registry) ([]common.EntityID, error) {
	var ids []common.EntityID
	for _, spec := range l.Pickups {
		e, err := registry.Create(entities.TypePickup, entities.PickupFields(spec.Prefab, spec.Kind, spec.Position, false))
		if err != nil {
			return ids, err
		}
		p := e.(*entities.Pickup)
		p.Amount = spec.Amount
		p.RespawnDelay = spec.Respawn
		p.DestroyOnPickup = spec.DestroyOnPickup
		ids = append(ids, e.ID())
	}
	for _, spec := range l.WeaponDrops {
		e, err := registry.Create(entities.TypeWeaponDrop, entities.WeaponDropFields(spec.Prefab, spec.Position, spec.Rotation, spec.Ammo))
		if err != nil {
			return ids, err
		}
		ids = append(ids, e.ID())
	}
	gwlog.Infof("world: spawned %d pickups and %d weapon drops", len(l.Pickups), len(l.WeaponDrops))
	return ids, nil
}
