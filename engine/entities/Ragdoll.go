package entities

import (
	"github.com/xiaonanln/fpsworld/engine/entity"
)

// Ragdoll is the body left by a dead player; the server destroys it after a while
type Ragdoll struct {
	entity.Base

	Velocity entity.Vector3
	Position entity.Vector3
	Rotation entity.Quaternion
}

// RagdollFields returns the initialize fields of a ragdoll
func RagdollFields(pos entity.Vector3) []string {
	return pos.Fields()
}

func registerRagdoll(ts *entity.TypeSet) {
	ts.RegisterType(TypeRagdoll, func() entity.Entity {
		return &Ragdoll{Rotation: entity.Quaternion{W: 1}}
	})
}

// Initialize reads x%y%z
func (r *Ragdoll) Initialize(fields []string) error {
	if err := expectFields(TypeRagdoll, fields, 3); err != nil {
		return err
	}
	pos, err := entity.ParseVector3(fields)
	if err != nil {
		return err
	}
	r.Position = pos
	return nil
}

// ApplyUpdate reads vx%vy%vz%x%y%z%qx%qy%qz%qw
func (r *Ragdoll) ApplyUpdate(fields []string) error {
	if err := expectFields(TypeRagdoll, fields, 10); err != nil {
		return err
	}
	vel, err := entity.ParseVector3(fields[0:3])
	if err != nil {
		return err
	}
	pos, err := entity.ParseVector3(fields[3:6])
	if err != nil {
		return err
	}
	rot, err := entity.ParseQuaternion(fields[6:10])
	if err != nil {
		return err
	}
	r.Velocity, r.Position, r.Rotation = vel, pos, rot
	return nil
}

// SerializeInitialize writes x%y%z
func (r *Ragdoll) SerializeInitialize() []string {
	return r.Position.Fields()
}

// SerializeUpdate writes vx%vy%vz%x%y%z%qx%qy%qz%qw
func (r *Ragdoll) SerializeUpdate() []string {
	fields := append(r.Velocity.Fields(), r.Position.Fields()...)
	return append(fields, r.Rotation.Fields()...)
}
