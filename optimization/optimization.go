// Package optimization wraps the non-linear least-squares solver the pose
// graph dispatches optimization rounds to. OptimizationProblem is the
// narrow, opaque-solver contract the pose graph depends on; the only
// implementation, GonumOptimizationProblem, builds a single scalar
// objective over every non-frozen submap/node/landmark pose parameter from
// constraint and landmark residuals and minimizes it with
// gonum.org/v1/gonum/optimize, the same gonum module already used for the
// quaternion math in package geometry.
package optimization

import (
	"time"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
)

// OptimizationProblem is the opaque non-linear solver adapter.
// Implementations must be safe for concurrent use: the pose graph calls
// Solve with its own lock released, and reads SubmapData and LandmarkData
// for its queries without taking its lock.
type OptimizationProblem interface {
	AddSubmap(submapID id.SubmapID, initialGlobalPose geometry.Rigid2d)
	InsertSubmap(submapID id.SubmapID, pose geometry.Rigid2d)
	TrimSubmap(submapID id.SubmapID)

	AddTrajectoryNode(nodeID id.NodeID, spec mapping.NodeSpec)
	InsertTrajectoryNode(nodeID id.NodeID, spec mapping.NodeSpec)
	TrimTrajectoryNode(nodeID id.NodeID)

	AddImuData(trajectoryID id.TrajectoryID, t time.Time, linearAcceleration, angularVelocity [3]float64)
	AddOdometryData(trajectoryID id.TrajectoryID, t time.Time, pose geometry.Rigid3d)

	// Solve re-estimates every non-frozen submap, node and landmark pose
	// from constraints plus each landmark's recorded observations. Submaps
	// and nodes belonging to a trajectory in frozenTrajectoryIDs are held
	// fixed. Solve failures are non-fatal: whatever poses the solver
	// produced (even a partial run) are still applied; callers surface the
	// returned error as a metric/log, not an abort.
	Solve(constraints []mapping.Constraint, frozenTrajectoryIDs map[id.TrajectoryID]bool, landmarkNodes map[string]*mapping.LandmarkNode) error

	SubmapData() *id.MapById[id.SubmapID, geometry.Rigid2d]
	NodeData() *id.MapById[id.NodeID, geometry.Rigid2d]
	LandmarkData() map[string]geometry.Rigid2d

	SetMaxNumIterations(n int)
}

func newSubmapID(t id.TrajectoryID, i int) id.SubmapID { return id.SubmapID{TrajectoryID: t, SubmapIndex: i} }
func newNodeID(t id.TrajectoryID, i int) id.NodeID     { return id.NodeID{TrajectoryID: t, NodeIndex: i} }
