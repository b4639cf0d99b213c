package entities

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// PlayerAvatar is the entity a connected player controls
type PlayerAvatar struct {
	entity.Base

	Name     string
	Position entity.Vector3
	Pitch    float32
	Yaw      float32

	Health    int
	MaxHealth int
	Dead      bool
	Weapon    int
	Ammo      int
	BestSpeed float32
}

// PlayerAvatarFields returns the initialize fields of a new player
func PlayerAvatarFields(owner transport.ConnectionID, name string, pos entity.Vector3) []string {
	return append([]string{proto.FormatInt(int(owner)), name}, pos.Fields()...)
}

func registerPlayerAvatar(ts *entity.TypeSet) {
	ts.RegisterType(TypePlayerAvatar, func() entity.Entity {
		return &PlayerAvatar{MaxHealth: consts.PLAYER_MAX_HEALTH, Health: consts.PLAYER_MAX_HEALTH}
	}).
		DefineClientRPC("TryInteract", entity.Method((*PlayerAvatar).tryInteract), entity.ArgFloat, entity.ArgFloat, entity.ArgFloat, entity.ArgInt, entity.ArgInt).
		DefineClientRPC("SwitchWeapon", entity.Method((*PlayerAvatar).switchWeapon), entity.ArgInt).
		DefineClientRPC("ReportSpeed", entity.Method((*PlayerAvatar).reportSpeed), entity.ArgFloat).
		DefineRPC("TakeDamage", entity.Method((*PlayerAvatar).takeDamage), entity.ArgInt).
		DefineRPC("TakeHeal", entity.Method((*PlayerAvatar).takeHeal), entity.ArgInt).
		DefineRPC("Die", entity.Method((*PlayerAvatar).die)).
		DefineRPC("Revive", entity.Method((*PlayerAvatar).revive), entity.ArgFloat, entity.ArgFloat, entity.ArgFloat)
}

// Initialize reads owner%name%x%y%z
func (p *PlayerAvatar) Initialize(fields []string) error {
	if err := expectFields(TypePlayerAvatar, fields, 5); err != nil {
		return err
	}
	owner, err := proto.ParseInt(fields[0])
	if err != nil {
		return err
	}
	if err := p.BindOwner(transport.ConnectionID(owner)); err != nil {
		return err
	}
	if fields[1] == "" {
		return errors.Wrap(proto.ErrMalformedMessage, "PlayerAvatar: empty name")
	}
	p.Name = fields[1]
	p.Position, err = entity.ParseVector3(fields[2:])
	return err
}

// ApplyUpdate reads x%y%z%pitch%yaw
func (p *PlayerAvatar) ApplyUpdate(fields []string) error {
	if err := expectFields(TypePlayerAvatar, fields, 5); err != nil {
		return err
	}
	pos, err := entity.ParseVector3(fields[:3])
	if err != nil {
		return err
	}
	pitch, err := proto.ParseFloat(fields[3])
	if err != nil {
		return err
	}
	yaw, err := proto.ParseFloat(fields[4])
	if err != nil {
		return err
	}
	p.Position, p.Pitch, p.Yaw = pos, pitch, yaw
	return nil
}

// SerializeInitialize writes owner%name%x%y%z
func (p *PlayerAvatar) SerializeInitialize() []string {
	return PlayerAvatarFields(p.Owner(), p.Name, p.Position)
}

// SerializeUpdate writes x%y%z%pitch%yaw
func (p *PlayerAvatar) SerializeUpdate() []string {
	return append(p.Position.Fields(), proto.FormatFloat(p.Pitch), proto.FormatFloat(p.Yaw))
}

// InteractPoint returns the point, the target entity id (0 for the nearest item) and the
// weapon slot of TryInteract arguments
func InteractPoint(args entity.Args) (entity.Vector3, int, int) {
	return entity.Vector3{X: entity.Coord(args.Float(0)), Y: entity.Coord(args.Float(1)), Z: entity.Coord(args.Float(2))}, args.Int(3), args.Int(4)
}

// CanReach reports whether pos is within interaction range
func (p *PlayerAvatar) CanReach(pos entity.Vector3) bool {
	return p.Position.DistanceTo(pos) <= consts.INTERACT_RANGE
}

func (p *PlayerAvatar) tryInteract(args entity.Args) bool {
	if p.Dead {
		return false
	}
	point, _, _ := InteractPoint(args)
	return p.CanReach(point)
}

func (p *PlayerAvatar) switchWeapon(args entity.Args) bool {
	slot := args.Int(0)
	if p.Dead || slot < 0 || slot >= consts.PLAYER_WEAPON_SLOTS {
		return false
	}
	p.Weapon = slot
	return true
}

func (p *PlayerAvatar) reportSpeed(args entity.Args) bool {
	speed := args.Float(0)
	if speed < 0 || speed > consts.PLAYER_MAX_SPEED {
		return false
	}
	if speed > p.BestSpeed {
		p.BestSpeed = speed
	}
	return true
}

func (p *PlayerAvatar) setHealth(health int) {
	if health < 0 {
		health = 0
	} else if health > p.MaxHealth {
		health = p.MaxHealth
	}
	p.Health = health
	if p.Health == 0 {
		p.Dead = true
	}
}

func (p *PlayerAvatar) takeDamage(args entity.Args) bool {
	if p.Dead {
		return false
	}
	p.setHealth(p.Health - args.Int(0))
	return true
}

func (p *PlayerAvatar) takeHeal(args entity.Args) bool {
	if p.Dead {
		return false
	}
	p.setHealth(p.Health + args.Int(0))
	return true
}

func (p *PlayerAvatar) die(args entity.Args) bool {
	p.Health = 0
	p.Dead = true
	return true
}

func (p *PlayerAvatar) revive(args entity.Args) bool {
	p.Dead = false
	p.Health = p.MaxHealth
	p.Position = entity.Vector3{X: entity.Coord(args.Float(0)), Y: entity.Coord(args.Float(1)), Z: entity.Coord(args.Float(2))}
	return true
}

// NeedsHealth reports whether a heal would have an effect
func (p *PlayerAvatar) NeedsHealth() bool {
	return !p.Dead && p.Health < p.MaxHealth
}

// AddAmmo adds up to n ammo and reports whether any was taken
func (p *PlayerAvatar) AddAmmo(n int) bool {
	if p.Dead || p.Ammo >= consts.PLAYER_MAX_AMMO || n <= 0 {
		return false
	}
	p.Ammo += n
	if p.Ammo > consts.PLAYER_MAX_AMMO {
		p.Ammo = consts.PLAYER_MAX_AMMO
	}
	return true
}
