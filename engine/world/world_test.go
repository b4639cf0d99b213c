package world

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/fpsworld/engine/entities"
	"github.com/xiaonanln/fpsworld/engine/entity"
)

const sampleLayout = `
pickups:
  - kind: Health
    prefab: 3
    position: {x: 1, y: 2, z: 3}
    amount: 40
    respawn: 5s
  - kind: Ammo
    position: {x: -1, y: 0, z: 0}
    destroyOnPickup: true
weaponDrops:
  - prefab: 7
    position: {x: 4, y: 0, z: 4}
    rotation: {x: 0, y: 90, z: 0}
    ammo: 12
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	if err := os.WriteFile(path, []byte(sampleLayout), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, len(l.Pickups))
	assert.Equal(t, entities.PickupHealth, l.Pickups[0].Kind)
	assert.Equal(t, entity.Vector3{X: 1, Y: 2, Z: 3}, l.Pickups[0].Position)
	assert.Equal(t, 40, l.Pickups[0].Amount)
	assert.Equal(t, 5*time.Second, l.Pickups[0].Respawn)
	assert.Equal(t, 25, l.Pickups[1].Amount) // default
	assert.Equal(t, true, l.Pickups[1].DestroyOnPickup)
	assert.Equal(t, 1, len(l.WeaponDrops))
	assert.Equal(t, entity.Coord(90), l.WeaponDrops[0].Rotation.Y)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader("pickups:\n  - kind: Armor\n"))
	assert.NotEqual(t, nil, err)
	_, err = Decode(strings.NewReader("pickupz: []\n"))
	assert.NotEqual(t, nil, err)
	_, err = Decode(strings.NewReader("weaponDrops:\n  - ammo: -1\n"))
	assert.NotEqual(t, nil, err)

	l, err := Decode(strings.NewReader(""))
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(l.Pickups))
}

func TestSpawnDefault(t *testing.T) {
	registry := entity.NewAuthoritative(entities.NewTypeSet())
	l := Default()
	ids, err := l.Spawn(registry)
	assert.Equal(t, nil, err)
	assert.Equal(t, len(l.Pickups)+len(l.WeaponDrops), len(ids))
	assert.Equal(t, len(ids), registry.Len())

	e, err := registry.Get(ids[2])
	assert.Equal(t, nil, err)
	p := e.(*entities.Pickup)
	assert.Equal(t, entities.PickupAmmo, p.Kind)
	assert.Equal(t, 30, p.Amount)
	assert.Equal(t, true, p.Available())
}
