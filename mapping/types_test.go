package mapping_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"go.viam.com/test"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
)

func TestInternalSubmapDataAddNodeIDIsIdempotent(t *testing.T) {
	d := &mapping.InternalSubmapData{}
	n := id.NodeID{TrajectoryID: 0, NodeIndex: 1}
	d.AddNodeID(n)
	d.AddNodeID(n)
	test.That(t, len(d.NodeIDs), test.ShouldEqual, 1)
	test.That(t, d.HasNodeID(n), test.ShouldBeTrue)
	test.That(t, d.HasNodeID(id.NodeID{TrajectoryID: 0, NodeIndex: 2}), test.ShouldBeFalse)
}

func TestLocalPose2DUndoesGravityAlignment(t *testing.T) {
	data := mapping.TrajectoryNodeData{
		LocalPose:        geometry.Embed3D(geometry.NewRigid2D(1, 2, 0.4)),
		GravityAlignment: geometry.Identity3D(),
	}
	got := data.LocalPose2D()
	test.That(t, got.AlmostEqual(geometry.NewRigid2D(1, 2, 0.4), 1e-9), test.ShouldBeTrue)
}

// TestLocalPose2DWithRollPitchPreservesTranslation exercises a non-identity
// gravity alignment carrying real roll/pitch: only heading should be
// affected by the alignment's inverse rotation, since LocalPose's
// translation is the outer operand and the alignment's own translation is
// zero.
func TestLocalPose2DWithRollPitchPreservesTranslation(t *testing.T) {
	localPose := geometry.NewRigid3D(r3.Vec{X: 3, Y: -4, Z: 1.5}, quatFromRPY(0.3, -0.2, 0.4))
	gravityAlignment := geometry.NewRigid3D(r3.Vec{}, quatFromRPY(0.3, -0.2, 0))
	data := mapping.TrajectoryNodeData{
		LocalPose:        localPose,
		GravityAlignment: gravityAlignment,
	}
	got := data.LocalPose2D()
	test.That(t, got.Translation.X, test.ShouldAlmostEqual, 3.0, 1e-9)
	test.That(t, got.Translation.Y, test.ShouldAlmostEqual, -4.0, 1e-9)
}

// quatFromRPY builds a unit quaternion from roll/pitch/yaw (radians),
// applied in that order, for constructing test fixtures.
func quatFromRPY(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}
