package game

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/entities"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// onAcceptedCall attaches world effects to accepted client calls
func (gs *GameService) onAcceptedCall(from transport.ConnectionID, e entity.Entity, method string, args entity.Args) {
	if method != "TryInteract" {
		return
	}
	avatar, ok := e.(*entities.PlayerAvatar)
	if !ok {
		return
	}
	point, target, _ := entities.InteractPoint(args)
	item := gs.interactTarget(avatar, point, common.EntityID(target))
	switch item := item.(type) {
	case *entities.Pickup:
		gs.acquirePickup(avatar, item)
	case *entities.WeaponDrop:
		gs.collectWeapon(avatar, item)
	}
}

// interactTarget returns the item a player interacts with: target when it is given and
// reachable, else the reachable item nearest to point
func (gs *GameService) interactTarget(avatar *entities.PlayerAvatar, point entity.Vector3, target common.EntityID) entity.Entity {
	if target != 0 {
		e, err := gs.registry.Get(target)
		if err != nil || !avatar.CanReach(itemPosition(e)) {
			return nil
		}
		return e
	}
	var best entity.Entity
	var bestDist entity.Coord
	for _, typeName := range []string{entities.TypePickup, entities.TypeWeaponDrop} {
		for _, e := range gs.registry.ByType(typeName) {
			pos := itemPosition(e)
			if !avatar.CanReach(pos) {
				continue
			}
			if d := pos.DistanceTo(point); best == nil || d < bestDist {
				best, bestDist = e, d
			}
		}
	}
	return best
}

func itemPosition(e entity.Entity) entity.Vector3 {
	switch item := e.(type) {
	case *entities.Pickup:
		return item.Position
	case *entities.WeaponDrop:
		return item.Position
	}
	return entity.Vector3{X: 1e9}
}

// acquirePickup gives the benefit of p to avatar, then hides p until it respawns or
// destroys it
func (gs *GameService) acquirePickup(avatar *entities.PlayerAvatar, p *entities.Pickup) {
	heal, ammo := p.Benefit(avatar)
	if heal == 0 && ammo == 0 {
		return
	}
	if heal > 0 {
		if err := gs.rpc.InvokeAuthoritative(avatar, "TakeHeal", heal); err != nil {
			gwlog.Errorf("%s: heal %s: %s", gs, avatar, err)
			return
		}
	}
	if ammo > 0 {
		avatar.AddAmmo(ammo)
	}
	gwlog.Debugf("%s: %s acquired %s (%s)", gs, avatar, p, p.Kind)

	if p.DestroyOnPickup {
		gs.destroyEntity(p.ID())
		return
	}
	if err := gs.rpc.InvokeAuthoritative(p, "TriggerPickup"); err != nil {
		gwlog.Errorf("%s: trigger %s: %s", gs, p, err)
		return
	}
	p.AddCallback(p.RespawnDelay, func() {
		if err := gs.rpc.InvokeAuthoritative(p, "Respawn"); err != nil {
			gwlog.Errorf("%s: respawn %s: %s", gs, p, err)
		}
	})
}

func (gs *GameService) collectWeapon(avatar *entities.PlayerAvatar, w *entities.WeaponDrop) {
	if w.Collected || avatar.Dead {
		return
	}
	if err := gs.rpc.InvokeAuthoritative(w, "Collect"); err != nil {
		gwlog.Errorf("%s: collect %s: %s", gs, w, err)
		return
	}
	avatar.AddAmmo(w.Ammo)
	gwlog.Debugf("%s: %s collected %s", gs, avatar, w)
	gs.destroyEntity(w.ID())
}

// ApplyDamage hurts the avatar id. A killed avatar leaves a ragdoll and revives at the
// spawn point after a delay.
//
// Nothing on the wire calls it: hit detection belongs to the weapon simulation, which
// this server does not run. Hosts embedding a GameService resolve hits and call it.
func (gs *GameService) ApplyDamage(id common.EntityID, amount int) error {
	e, err := gs.registry.Get(id)
	if err != nil {
		return err
	}
	avatar, ok := e.(*entities.PlayerAvatar)
	if !ok {
		return errors.Errorf("%s is not a player", e)
	}
	if avatar.Dead {
		return nil
	}
	if err := gs.rpc.InvokeAuthoritative(avatar, "TakeDamage", amount); err != nil {
		return err
	}
	if !avatar.Dead {
		return nil
	}
	return gs.kill(avatar)
}

func (gs *GameService) kill(avatar *entities.PlayerAvatar) error {
	if err := gs.rpc.InvokeAuthoritative(avatar, "Die"); err != nil {
		return err
	}
	if p := gs.players.ByEntity(avatar.ID()); p != nil {
		p.Deaths++
	}
	gwlog.Infof("%s: %s died", gs, avatar)

	e, err := gs.spawnEntity(entities.TypeRagdoll, entities.RagdollFields(avatar.Position))
	if err != nil {
		return err
	}
	ragdoll := e.(*entities.Ragdoll)
	ragdoll.AddCallback(gs.ragdollLifespan, func() {
		gs.destroyEntity(ragdoll.ID())
	})
	avatar.AddCallback(gs.reviveDelay, func() {
		sp := entities.SpawnPoint
		if err := gs.rpc.InvokeAuthoritative(avatar, "Revive", float32(sp.X), float32(sp.Y), float32(sp.Z)); err != nil {
			gwlog.Errorf("%s: revive %s: %s", gs, avatar, err)
		}
	})
	return nil
}
