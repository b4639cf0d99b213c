package entity

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/proto"
)

// Coord is the of coordinations entity position (x, y, z)
type Coord float32

// Vector3 is type of entity position
type Vector3 struct {
	X Coord
	Y Coord
	Z Coord
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// DistanceTo calculates distance between two positions
func (p Vector3) DistanceTo(o Vector3) Coord {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return Coord(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Add calculates Vector3 p + Vector3 o
func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m Coord) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}

// Fields formats the vector as three wire fields
func (p Vector3) Fields() []string {
	return []string{proto.FormatFloat(float32(p.X)), proto.FormatFloat(float32(p.Y)), proto.FormatFloat(float32(p.Z))}
}

// ParseVector3 parses three wire fields
func ParseVector3(fields []string) (Vector3, error) {
	if len(fields) != 3 {
		return Vector3{}, errors.Wrapf(proto.ErrMalformedMessage, "vector needs 3 fields, got %d", len(fields))
	}
	var v [3]float32
	for i, f := range fields {
		var err error
		if v[i], err = proto.ParseFloat(f); err != nil {
			return Vector3{}, err
		}
	}
	return Vector3{Coord(v[0]), Coord(v[1]), Coord(v[2])}, nil
}

// Quaternion is a rotation
type Quaternion struct {
	X, Y, Z, W float32
}

// Fields formats the quaternion as four wire fields
func (q Quaternion) Fields() []string {
	return []string{proto.FormatFloat(q.X), proto.FormatFloat(q.Y), proto.FormatFloat(q.Z), proto.FormatFloat(q.W)}
}

// ParseQuaternion parses four wire fields
func ParseQuaternion(fields []string) (Quaternion, error) {
	if len(fields) != 4 {
		return Quaternion{}, errors.Wrapf(proto.ErrMalformedMessage, "quaternion needs 4 fields, got %d", len(fields))
	}
	var v [4]float32
	for i, f := range fields {
		var err error
		if v[i], err = proto.ParseFloat(f); err != nil {
			return Quaternion{}, err
		}
	}
	return Quaternion{v[0], v[1], v[2], v[3]}, nil
}
