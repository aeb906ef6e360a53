// Package geometry implements the rigid 2D/3D pose composition the pose
// graph needs: Rigid2d for the optimizer's in-plane submap/node poses, and
// Rigid3d for the front-end's 6-DoF submap/node local poses, with Project2D/
// Embed3D bridging the two exactly where cartographer's pose_graph_2d.cc
// does. The representation follows the style of spatialmath's
// DualQuaternion (a gonum quaternion for rotation, composed algebraically)
// but keeps translation as a plain vector since a 2D/3D rigid transform
// composition has no need for the dual-quaternion trick.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Rigid2d is a rigid transform in the plane: a translation plus a heading
// (radians, counter-clockwise from +X).
type Rigid2d struct {
	Translation r2.Vec
	Heading     float64
}

// Identity2D returns the identity transform.
func Identity2D() Rigid2d {
	return Rigid2d{}
}

// NewRigid2D builds a transform from its translation components and heading.
func NewRigid2D(x, y, heading float64) Rigid2d {
	return Rigid2d{Translation: r2.Vec{X: x, Y: y}, Heading: normalizeAngle(heading)}
}

// Translation2D returns a pure translation with zero heading.
func Translation2D(x, y float64) Rigid2d {
	return Rigid2d{Translation: r2.Vec{X: x, Y: y}}
}

// Apply transforms point p from the local frame into the frame this pose is
// expressed in.
func (p Rigid2d) Apply(point r2.Vec) r2.Vec {
	sin, cos := math.Sincos(p.Heading)
	return r2.Vec{
		X: cos*point.X - sin*point.Y + p.Translation.X,
		Y: sin*point.X + cos*point.Y + p.Translation.Y,
	}
}

// Compose returns p ∘ other: apply other first, then p. This matches the
// "this * other" convention used throughout cartographer (e.g.
// submapGlobal ∘ submapLocal⁻¹ ∘ localPose2d).
func (p Rigid2d) Compose(other Rigid2d) Rigid2d {
	return Rigid2d{
		Translation: p.Apply(other.Translation),
		Heading:     normalizeAngle(p.Heading + other.Heading),
	}
}

// Inverse returns the transform that undoes p.
func (p Rigid2d) Inverse() Rigid2d {
	sin, cos := math.Sincos(-p.Heading)
	inv := r2.Vec{
		X: cos*(-p.Translation.X) - sin*(-p.Translation.Y),
		Y: sin*(-p.Translation.X) + cos*(-p.Translation.Y),
	}
	return Rigid2d{Translation: inv, Heading: normalizeAngle(-p.Heading)}
}

// AlmostEqual reports whether p and other are equal within eps on both
// translation components and heading.
func (p Rigid2d) AlmostEqual(other Rigid2d, eps float64) bool {
	return math.Abs(p.Translation.X-other.Translation.X) < eps &&
		math.Abs(p.Translation.Y-other.Translation.Y) < eps &&
		math.Abs(normalizeAngle(p.Heading-other.Heading)) < eps
}

// NormalizeAngle wraps theta into (-pi, pi], the convention every heading
// and angular residual in this package uses.
func NormalizeAngle(theta float64) float64 {
	return normalizeAngle(theta)
}

func normalizeAngle(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}

// headingFromQuat extracts the yaw (rotation about +Z) of a unit quaternion,
// the same computation cartographer's transform::GetYaw performs.
func headingFromQuat(q quat.Number) float64 {
	sinYaw := 2 * (q.Real*q.Kmag + q.Imag*q.Jmag)
	cosYaw := 1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag)
	return math.Atan2(sinYaw, cosYaw)
}

// quatFromHeading builds the unit quaternion representing a pure rotation
// about +Z by heading radians.
func quatFromHeading(heading float64) quat.Number {
	sin, cos := math.Sincos(heading / 2)
	return quat.Number{Real: cos, Kmag: sin}
}
