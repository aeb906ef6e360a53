package geometry

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rigid3d is a rigid transform in space: a translation plus a unit
// quaternion rotation. Submap and node local poses are tracked in this
// representation; Rigid2d is what the optimizer actually solves for.
type Rigid3d struct {
	Translation r3.Vec
	Rotation    quat.Number
}

// Identity3D returns the identity transform.
func Identity3D() Rigid3d {
	return Rigid3d{Rotation: quat.Number{Real: 1}}
}

// NewRigid3D builds a transform from a translation and a (not necessarily
// normalized) rotation quaternion.
func NewRigid3D(translation r3.Vec, rotation quat.Number) Rigid3d {
	return Rigid3d{Translation: translation, Rotation: normalizeQuat(rotation)}
}

func normalizeQuat(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// rotate applies unit quaternion q to vector v via v' = q v q*.
func rotate(q quat.Number, v r3.Vec) r3.Vec {
	vq := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	rq := quat.Mul(quat.Mul(q, vq), quat.Conj(q))
	return r3.Vec{X: rq.Imag, Y: rq.Jmag, Z: rq.Kmag}
}

// Apply transforms point from the local frame into the frame p is expressed
// in.
func (p Rigid3d) Apply(point r3.Vec) r3.Vec {
	return r3.Add(rotate(p.Rotation, point), p.Translation)
}

// Compose returns p ∘ other: apply other first, then p.
func (p Rigid3d) Compose(other Rigid3d) Rigid3d {
	return Rigid3d{
		Translation: p.Apply(other.Translation),
		Rotation:    normalizeQuat(quat.Mul(p.Rotation, other.Rotation)),
	}
}

// Inverse returns the transform that undoes p.
func (p Rigid3d) Inverse() Rigid3d {
	invRotation := quat.Conj(p.Rotation)
	return Rigid3d{
		Translation: rotate(invRotation, r3.Scale(-1, p.Translation)),
		Rotation:    invRotation,
	}
}

// Project2D drops the z component and roll/pitch of p, keeping only x, y and
// yaw, the way cartographer's transform::Project2D flattens a front-end
// local pose into the 2D pose the optimizer solves for.
func (p Rigid3d) Project2D() Rigid2d {
	return Rigid2d{
		Translation: r2.Vec{X: p.Translation.X, Y: p.Translation.Y},
		Heading:     headingFromQuat(p.Rotation),
	}
}

// Embed3D lifts a 2D transform into 3D with z = 0 and a pure yaw rotation,
// the inverse of Project2D and the way cartographer's transform::Embed3D
// recovers a 3D pose to compose against a front-end local frame.
func Embed3D(p Rigid2d) Rigid3d {
	return Rigid3d{
		Translation: r3.Vec{X: p.Translation.X, Y: p.Translation.Y},
		Rotation:    quatFromHeading(p.Heading),
	}
}
