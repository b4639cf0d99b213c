package entities

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/proto"
)

func newWorld(t *testing.T) (*entity.Registry, map[string]entity.Entity) {
	r := entity.NewAuthoritative(NewTypeSet())
	created := map[string]entity.Entity{}
	for typeName, fields := range map[string][]string{
		TypePlayerAvatar: PlayerAvatarFields(42, "Bob123", SpawnPoint),
		TypePickup:       PickupFields(1, PickupHealth, entity.Vector3{X: 2, Y: 0, Z: 1}, false),
		TypeWeaponDrop:   WeaponDropFields(3, entity.Vector3{X: 1, Y: 1, Z: 1}, entity.Vector3{Y: 90}, 30),
		TypeRagdoll:      RagdollFields(entity.Vector3{X: 4, Y: 0.5, Z: 4}),
	} {
		e, err := r.Create(typeName, fields)
		if err != nil {
			t.Fatalf("create %s: %v", typeName, err)
		}
		created[typeName] = e
	}
	return r, created
}

func TestPlayerAvatarRecord(t *testing.T) {
	r := entity.NewAuthoritative(NewTypeSet())
	for i := 0; i < 6; i++ {
		r.Create(TypeRagdoll, RagdollFields(entity.Vector3{}))
	}
	e, err := r.Create(TypePlayerAvatar, PlayerAvatarFields(42, "Bob123", SpawnPoint))
	assert.Equal(t, nil, err)
	m, err := proto.InitializeEntity(entity.Record(e))
	assert.Equal(t, nil, err)
	s, _ := m.Encode()
	assert.Equal(t, "Data_InitializeEntity|7%PlayerAvatar%42%Bob123%0%5%0", s)
}

func TestApplyOwnUpdateIsIdempotent(t *testing.T) {
	_, created := newWorld(t)
	ragdoll := created[TypeRagdoll].(*Ragdoll)
	ragdoll.Velocity = entity.Vector3{X: 0.5, Y: -9.8, Z: 0}
	ragdoll.Rotation = entity.Quaternion{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9}
	player := created[TypePlayerAvatar].(*PlayerAvatar)
	player.Pitch, player.Yaw = -12.5, 270

	for typeName, e := range created {
		init := e.SerializeInitialize()
		update := e.SerializeUpdate()
		assert.Tf(t, e.ApplyUpdate(update) == nil, "%s", typeName)
		assert.Equal(t, init, e.SerializeInitialize())
		assert.Equal(t, update, e.SerializeUpdate())
	}
}

func TestMirrorRoundTripsInitialize(t *testing.T) {
	r, _ := newWorld(t)
	m := entity.NewMirror(NewTypeSet())
	for _, rec := range r.Records() {
		_, err := m.MirrorRecord(rec)
		assert.Tf(t, err == nil, "%s: %v", rec.Type, err)
	}
	assert.Equal(t, r.Records(), m.Records())
}

func TestInitializeRejectsBadFields(t *testing.T) {
	r := entity.NewAuthoritative(NewTypeSet())
	for typeName, fields := range map[string][]string{
		TypePlayerAvatar: {"1", "Bob", "0", "0"},
		TypePickup:       {"1", "Armor", "0", "0", "0", "False"},
		TypeWeaponDrop:   {"1", "0", "0", "0", "0", "0", "0", "many"},
		TypeRagdoll:      {"x", "0", "0"},
	} {
		_, err := r.Create(typeName, fields)
		assert.Tf(t, errors.Cause(err) == proto.ErrMalformedMessage, "%s: %v", typeName, err)
	}
	_, err := r.Create(TypePlayerAvatar, []string{"1", "", "0", "0", "0"})
	assert.T(t, errors.Cause(err) == proto.ErrMalformedMessage, err)
}

func TestApplyUpdateRejectsNonFinite(t *testing.T) {
	_, created := newWorld(t)
	player := created[TypePlayerAvatar].(*PlayerAvatar)
	before := player.SerializeUpdate()
	for i, bad := range []string{"NaN", "Inf", "-Inf", "NaN", "+Inf"} {
		update := append([]string(nil), before...)
		update[i] = bad
		err := player.ApplyUpdate(update)
		assert.Tf(t, errors.Cause(err) == proto.ErrMalformedMessage, "%v: %v", update, err)
	}
	assert.Equal(t, before, player.SerializeUpdate())
}

func call(t *testing.T, e entity.Entity, types *entity.TypeSet, method string, raw ...string) bool {
	rd := types.Get(e.TypeName()).RPC(method)
	if rd == nil {
		t.Fatalf("%s has no rpc %s", e.TypeName(), method)
	}
	args, err := rd.Coerce(raw)
	if err != nil {
		t.Fatalf("%s.%s: %v", e.TypeName(), method, err)
	}
	return rd.Handler(e, args)
}

func TestAllowLists(t *testing.T) {
	ts := NewTypeSet()
	assert.Equal(t, []string{"ReportSpeed", "SwitchWeapon", "TryInteract"}, ts.Get(TypePlayerAvatar).ClientRPCNames())
	assert.Equal(t, 0, len(ts.Get(TypePickup).ClientRPCNames()))
	assert.Equal(t, 0, len(ts.Get(TypeWeaponDrop).ClientRPCNames()))
	assert.Equal(t, 0, len(ts.Get(TypeRagdoll).ClientRPCNames()))
	assert.T(t, ts.Get(TypePlayerAvatar).RPC("TakeDamage") != nil, "TakeDamage")
}

func TestPlayerVitals(t *testing.T) {
	r, created := newWorld(t)
	ts := r.Types()
	p := created[TypePlayerAvatar].(*PlayerAvatar)
	assert.Equal(t, consts.PLAYER_MAX_HEALTH, p.Health)

	assert.T(t, call(t, p, ts, "TakeDamage", "30"), "damage")
	assert.Equal(t, consts.PLAYER_MAX_HEALTH-30, p.Health)
	assert.T(t, call(t, p, ts, "TakeHeal", "1000"), "heal")
	assert.Equal(t, consts.PLAYER_MAX_HEALTH, p.Health)

	assert.T(t, call(t, p, ts, "TakeDamage", "1000"), "damage")
	assert.Equal(t, 0, p.Health)
	assert.T(t, p.Dead, "dead")
	assert.T(t, !call(t, p, ts, "TakeDamage", "1"), "dead players take no damage")
	assert.T(t, !call(t, p, ts, "SwitchWeapon", "1"), "dead players cannot switch")
	assert.T(t, !call(t, p, ts, "TryInteract", "0", "5", "0", "0", "0"), "dead players cannot interact")

	assert.T(t, call(t, p, ts, "Revive", "1", "5", "1"), "revive")
	assert.T(t, !p.Dead, "alive")
	assert.Equal(t, consts.PLAYER_MAX_HEALTH, p.Health)
	assert.Equal(t, entity.Vector3{X: 1, Y: 5, Z: 1}, p.Position)

	assert.T(t, call(t, p, ts, "Die"), "die")
	assert.T(t, p.Dead, "dead")
}

func TestPlayerClientRPCs(t *testing.T) {
	r, created := newWorld(t)
	ts := r.Types()
	p := created[TypePlayerAvatar].(*PlayerAvatar)

	assert.T(t, call(t, p, ts, "TryInteract", "1.0", "5", "1.0", "0", "0"), "in range")
	assert.T(t, !call(t, p, ts, "TryInteract", "1.0", "2.0", "3.0", "0", "0"), "out of range")

	assert.T(t, call(t, p, ts, "SwitchWeapon", "2"), "switch")
	assert.Equal(t, 2, p.Weapon)
	assert.T(t, !call(t, p, ts, "SwitchWeapon", "3"), "no such slot")
	assert.Equal(t, 2, p.Weapon)

	assert.T(t, call(t, p, ts, "ReportSpeed", "12.5"), "speed")
	assert.T(t, call(t, p, ts, "ReportSpeed", "3"), "speed")
	assert.Equal(t, float32(12.5), p.BestSpeed)
	assert.T(t, !call(t, p, ts, "ReportSpeed", "5000"), "implausible speed")
	assert.Equal(t, float32(12.5), p.BestSpeed)
}

func TestPickup(t *testing.T) {
	r, created := newWorld(t)
	ts := r.Types()
	p := created[TypePlayerAvatar].(*PlayerAvatar)
	pickup := created[TypePickup].(*Pickup)

	heal, ammo := pickup.Benefit(p)
	assert.Equal(t, 0, heal+ammo) // full health
	p.Health = 50
	heal, ammo = pickup.Benefit(p)
	assert.Equal(t, 25, heal)
	assert.Equal(t, 0, ammo)

	assert.T(t, call(t, pickup, ts, "TriggerPickup"), "trigger")
	assert.T(t, !pickup.Available(), "respawning")
	heal, _ = pickup.Benefit(p)
	assert.Equal(t, 0, heal) // respawning
	assert.T(t, !call(t, pickup, ts, "TriggerPickup"), "already triggered")
	assert.Equal(t, "True", pickup.SerializeInitialize()[5])

	assert.T(t, call(t, pickup, ts, "Respawn"), "respawn")
	assert.T(t, pickup.Available(), "available")

	refill := &Pickup{Kind: PickupAmmo, Amount: 30}
	_, ammo = refill.Benefit(p)
	assert.Equal(t, 30, ammo)
	p.Ammo = consts.PLAYER_MAX_AMMO
	_, ammo = refill.Benefit(p)
	assert.Equal(t, 0, ammo) // ammo full
}

func TestWeaponDropCollectOnce(t *testing.T) {
	r, created := newWorld(t)
	w := created[TypeWeaponDrop].(*WeaponDrop)
	assert.T(t, call(t, w, r.Types(), "Collect"), "collect")
	assert.T(t, !call(t, w, r.Types(), "Collect"), "collect again")
	assert.Equal(t, []string{"3", "1", "1", "1", "0", "90", "0", "30"}, w.SerializeInitialize())
}
