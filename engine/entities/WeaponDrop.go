package entities

import (
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/proto"
)

// WeaponDrop is a weapon lying in the world, collected once
type WeaponDrop struct {
	entity.Base

	Prefab    int
	Position  entity.Vector3
	Rotation  entity.Vector3
	Ammo      int
	Collected bool
}

// WeaponDropFields returns the initialize fields of a weapon drop
func WeaponDropFields(prefab int, pos, rot entity.Vector3, ammo int) []string {
	fields := []string{proto.FormatInt(prefab)}
	fields = append(fields, pos.Fields()...)
	fields = append(fields, rot.Fields()...)
	return append(fields, proto.FormatInt(ammo))
}

func registerWeaponDrop(ts *entity.TypeSet) {
	ts.RegisterType(TypeWeaponDrop, func() entity.Entity { return &WeaponDrop{} }).
		DefineRPC("Collect", entity.Method((*WeaponDrop).collect))
}

// Initialize reads prefab%x%y%z%rx%ry%rz%ammo
func (w *WeaponDrop) Initialize(fields []string) error {
	if err := expectFields(TypeWeaponDrop, fields, 8); err != nil {
		return err
	}
	var err error
	if w.Prefab, err = proto.ParseInt(fields[0]); err != nil {
		return err
	}
	if w.Position, err = entity.ParseVector3(fields[1:4]); err != nil {
		return err
	}
	if w.Rotation, err = entity.ParseVector3(fields[4:7]); err != nil {
		return err
	}
	w.Ammo, err = proto.ParseInt(fields[7])
	return err
}

// ApplyUpdate reads x%y%z
func (w *WeaponDrop) ApplyUpdate(fields []string) error {
	pos, err := entity.ParseVector3(fields)
	if err != nil {
		return err
	}
	w.Position = pos
	return nil
}

// SerializeInitialize writes prefab%x%y%z%rx%ry%rz%ammo
func (w *WeaponDrop) SerializeInitialize() []string {
	return WeaponDropFields(w.Prefab, w.Position, w.Rotation, w.Ammo)
}

// SerializeUpdate writes x%y%z
func (w *WeaponDrop) SerializeUpdate() []string {
	return w.Position.Fields()
}

func (w *WeaponDrop) collect(args entity.Args) bool {
	if w.Collected {
		return false
	}
	w.Collected = true
	return true
}
