package entities

import (
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/proto"
)

// PickupKind is what a pickup gives
type PickupKind string

const (
	// PickupHealth heals the player
	PickupHealth PickupKind = "Health"
	// PickupAmmo refills ammo
	PickupAmmo PickupKind = "Ammo"
)

// ParsePickupKind validates a kind field
func ParsePickupKind(s string) (PickupKind, error) {
	switch k := PickupKind(s); k {
	case PickupHealth, PickupAmmo:
		return k, nil
	}
	return "", errors.Wrapf(proto.ErrMalformedMessage, "unknown pickup kind %q", s)
}

// Pickup is a world item players acquire by interacting with it
type Pickup struct {
	entity.Base

	Prefab     int
	Kind       PickupKind
	Position   entity.Vector3
	Respawning bool

	// server side settings, not replicated
	Amount          int
	RespawnDelay    time.Duration
	DestroyOnPickup bool
}

// PickupFields returns the initialize fields of a pickup
func PickupFields(prefab int, kind PickupKind, pos entity.Vector3, respawning bool) []string {
	fields := append([]string{proto.FormatInt(prefab), string(kind)}, pos.Fields()...)
	return append(fields, proto.FormatBool(respawning))
}

func registerPickup(ts *entity.TypeSet) {
	ts.RegisterType(TypePickup, func() entity.Entity {
		return &Pickup{Amount: 25, RespawnDelay: consts.PICKUP_RESPAWN_DELAY}
	}).
		DefineRPC("TriggerPickup", entity.Method((*Pickup).triggerPickup)).
		DefineRPC("Respawn", entity.Method((*Pickup).respawn))
}

// Initialize reads prefab%kind%x%y%z%isRespawning
func (p *Pickup) Initialize(fields []string) error {
	if err := expectFields(TypePickup, fields, 6); err != nil {
		return err
	}
	var err error
	if p.Prefab, err = proto.ParseInt(fields[0]); err != nil {
		return err
	}
	if p.Kind, err = ParsePickupKind(fields[1]); err != nil {
		return err
	}
	if p.Position, err = entity.ParseVector3(fields[2:5]); err != nil {
		return err
	}
	p.Respawning, err = proto.ParseBool(fields[5])
	return err
}

// ApplyUpdate reads x%y%z
func (p *Pickup) ApplyUpdate(fields []string) error {
	pos, err := entity.ParseVector3(fields)
	if err != nil {
		return err
	}
	p.Position = pos
	return nil
}

// SerializeInitialize writes prefab%kind%x%y%z%isRespawning
func (p *Pickup) SerializeInitialize() []string {
	return PickupFields(p.Prefab, p.Kind, p.Position, p.Respawning)
}

// SerializeUpdate writes x%y%z
func (p *Pickup) SerializeUpdate() []string {
	return p.Position.Fields()
}

// Available reports whether the pickup can be acquired
func (p *Pickup) Available() bool {
	return !p.Respawning && !p.IsDestroyed()
}

// Benefit returns the health and ammo the pickup would give player; both are 0 when it
// has no effect
func (p *Pickup) Benefit(player *PlayerAvatar) (heal int, ammo int) {
	if !p.Available() || player.Dead {
		return 0, 0
	}
	switch p.Kind {
	case PickupHealth:
		if player.NeedsHealth() {
			heal = p.Amount
		}
	case PickupAmmo:
		if player.Ammo < consts.PLAYER_MAX_AMMO {
			ammo = p.Amount
		}
	}
	return
}

func (p *Pickup) triggerPickup(args entity.Args) bool {
	if p.Respawning {
		return false
	}
	p.Respawning = true
	return true
}

func (p *Pickup) respawn(args entity.Args) bool {
	p.Respawning = false
	return true
}
