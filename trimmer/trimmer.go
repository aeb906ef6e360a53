// Package trimmer implements pluggable submap retirement policies. The only
// policy provided, OverlappingSubmapsTrimmer, rasterizes every submap tied
// to a node by an intra-submap constraint onto a shared global grid and
// retires all but the freshest few covering each cell, the way
// cartographer's overlapping_submaps_trimmer.cc does. It does not check
// whether a submap is finished before rasterizing or retiring it.
package trimmer

import (
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/submap"
)

// SubmapData is the snapshot of one submap's current global pose the
// trimmer needs, the trimmer-facing shape of the pose graph's
// InternalSubmapData plus its optimized global pose.
type SubmapData struct {
	Submap     submap.Submap
	GlobalPose geometry.Rigid3d
}

// Trimmable is the short-lived handle a pose graph passes to a Trimmer's
// Trim call. It must not be retained past that call.
type Trimmable interface {
	GetConstraints() []mapping.Constraint
	GetAllSubmapData() *id.MapById[id.SubmapID, SubmapData]
	GetTrajectoryNodes() *id.MapById[id.NodeID, mapping.TrajectoryNode]
	MarkSubmapAsTrimmed(id.SubmapID)
}

// Trimmer is a submap retirement policy the pose graph runs after every
// optimization round.
type Trimmer interface {
	Trim(pose Trimmable)
	IsFinished() bool
}
