// Package mapping holds the data types shared across the pose graph, the
// constraint builder, the trimmer and the optimization adapter: constraints,
// trajectory nodes, landmark nodes and the trajectory lifecycle state
// machine. Keeping them in one leaf package (rather than on PoseGraph
// itself) is what lets constraints, trimmer and optimization depend on the
// same vocabulary without importing the pose graph.
package mapping

import (
	"time"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/submap"
)

// ConstraintTag distinguishes constraints observed synchronously during
// insertion from those discovered by loop-closure search.
type ConstraintTag int

const (
	// IntraSubmap constraints are emitted by AddNode for every submap a
	// node was inserted into.
	IntraSubmap ConstraintTag = iota
	// InterSubmap constraints come from the constraint builder's scan
	// matches.
	InterSubmap
)

func (t ConstraintTag) String() string {
	if t == IntraSubmap {
		return "IntraSubmap"
	}
	return "InterSubmap"
}

// PoseWeight is a weighted relative pose: the transform plus the
// translation/rotation weights the optimizer should give it.
type PoseWeight struct {
	RelativePose      geometry.Rigid2d
	TranslationWeight float64
	RotationWeight    float64
}

// Constraint is a weighted relative-pose edge between a submap and a node.
type Constraint struct {
	SubmapID id.SubmapID
	NodeID   id.NodeID
	Pose     PoseWeight
	Tag      ConstraintTag
}

// TrajectoryNodeData is the immutable, post-insertion payload of a
// trajectory node: the time it was recorded, its pose in the trajectory's
// local (unoptimized) frame, and the gravity alignment rotation applied to
// flatten it to 2D.
type TrajectoryNodeData struct {
	Time               time.Time
	LocalPose          geometry.Rigid3d
	GravityAlignment   geometry.Rigid3d
	NumRangeDataPoints int
}

// LocalPose2D is the node's gravity-aligned local pose projected to 2D, the
// value ComputeConstraintsForNode hands to the optimizer and uses to derive
// intra-submap constraint transforms. LocalPose is the outer operand and the
// gravity-alignment inverse (rotation only, translation untouched) is the
// inner one, matching cartographer's
// `local_pose * Rigid3d::Rotation(gravity_alignment.inverse())`.
func (d TrajectoryNodeData) LocalPose2D() geometry.Rigid2d {
	ungravity := geometry.Rigid3d{Rotation: d.GravityAlignment.Inverse().Rotation}
	return d.LocalPose.Compose(ungravity).Project2D()
}

// TrajectoryNode pairs immutable constant data with a global pose that only
// the optimizer (or post-optimization extrapolation) may overwrite.
type TrajectoryNode struct {
	ConstantData TrajectoryNodeData
	GlobalPose   geometry.Rigid3d
}

// SubmapState tracks whether a submap is still receiving range data.
type SubmapState int

const (
	SubmapActive SubmapState = iota
	SubmapFinished
)

// InternalSubmapData is the pose graph's own bookkeeping record for a
// submap: the (opaque) submap itself, its lifecycle state, and the ordered
// set of nodes tied to it by an intra-submap constraint.
type InternalSubmapData struct {
	Submap  submap.Submap
	State   SubmapState
	NodeIDs []id.NodeID
}

// AddNodeID appends nodeID if it is not already present.
func (d *InternalSubmapData) AddNodeID(nodeID id.NodeID) {
	for _, existing := range d.NodeIDs {
		if existing == nodeID {
			return
		}
	}
	d.NodeIDs = append(d.NodeIDs, nodeID)
}

// HasNodeID reports whether nodeID is tied to this submap.
func (d *InternalSubmapData) HasNodeID(nodeID id.NodeID) bool {
	for _, existing := range d.NodeIDs {
		if existing == nodeID {
			return true
		}
	}
	return false
}

// LandmarkObservation is a single sighting of a landmark from a trajectory
// at a point in time.
type LandmarkObservation struct {
	TrajectoryID       id.TrajectoryID
	Time               time.Time
	LandmarkToTracking geometry.Rigid3d
	TranslationWeight  float64
	RotationWeight     float64
}

// LandmarkNode holds every observation of one externally identified
// landmark plus its current globally optimized pose, if any.
type LandmarkNode struct {
	ID                 string
	Observations       []LandmarkObservation
	GlobalLandmarkPose *geometry.Rigid3d
}

// TrajectoryState is the lifecycle state of a trajectory.
type TrajectoryState int

const (
	TrajectoryActive TrajectoryState = iota
	TrajectoryFinished
	TrajectoryFrozen
	TrajectoryDeleted
)

func (s TrajectoryState) String() string {
	switch s {
	case TrajectoryActive:
		return "Active"
	case TrajectoryFinished:
		return "Finished"
	case TrajectoryFrozen:
		return "Frozen"
	case TrajectoryDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// DeletionState tracks a trajectory's progress through deletion, orthogonal
// to TrajectoryState until the final flip to Deleted.
type DeletionState int

const (
	DeletionNormal DeletionState = iota
	DeletionScheduledForDeletion
	DeletionWaitForDeletion
)

func (s DeletionState) String() string {
	switch s {
	case DeletionNormal:
		return "Normal"
	case DeletionScheduledForDeletion:
		return "ScheduledForDeletion"
	case DeletionWaitForDeletion:
		return "WaitForDeletion"
	default:
		return "Unknown"
	}
}

// InitialTrajectoryPose seeds the global transform of a trajectory before it
// has any optimized submap of its own.
type InitialTrajectoryPose struct {
	ToTrajectoryID id.TrajectoryID
	RelativePose   geometry.Rigid3d
	Time           time.Time
}

// NodeSpec is what the pose graph hands the optimization adapter for a
// newly inserted node: its 2D local and (initial) global pose.
type NodeSpec struct {
	LocalPose2D  geometry.Rigid2d
	GlobalPose2D geometry.Rigid2d
	Time         time.Time
}
