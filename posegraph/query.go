package posegraph

import (
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
)

// GetTrajectoryNodes returns a snapshot of every trajectory node.
func (g *PoseGraph) GetTrajectoryNodes() *id.MapById[id.NodeID, mapping.TrajectoryNode] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := id.NewMapById[id.NodeID, mapping.TrajectoryNode](newNodeID)
	for _, entry := range g.trajectoryNodes.Range() {
		out.Insert(entry.ID, entry.Data)
	}
	return out
}

// GetAllSubmapData returns a snapshot of every submap's internal data.
func (g *PoseGraph) GetAllSubmapData() *id.MapById[id.SubmapID, mapping.InternalSubmapData] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := id.NewMapById[id.SubmapID, mapping.InternalSubmapData](newSubmapID)
	for _, entry := range g.submapData.Range() {
		out.Insert(entry.ID, *entry.Data)
	}
	return out
}

// GetAllSubmapPoses returns the last optimization result's global pose for
// every live submap. The optimization adapter is itself safe for
// concurrent use, so this is read straight from it rather than through a
// pose-graph-maintained copy.
func (g *PoseGraph) GetAllSubmapPoses() *id.MapById[id.SubmapID, geometry.Rigid2d] {
	return g.problem.SubmapData()
}

// GetLandmarkPoses returns the last optimization result's global pose for
// every landmark with one.
func (g *PoseGraph) GetLandmarkPoses() map[string]geometry.Rigid2d {
	return g.problem.LandmarkData()
}

// Constraints returns a snapshot of every constraint currently known to the
// graph.
func (g *PoseGraph) Constraints() []mapping.Constraint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]mapping.Constraint(nil), g.constraintList...)
}

// NumConstraints returns the number of constraints currently known to the
// graph.
func (g *PoseGraph) NumConstraints() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.constraintList)
}

// GetConnectedTrajectories returns the current partition of all known
// trajectories into connected components.
func (g *PoseGraph) GetConnectedTrajectories() [][]id.TrajectoryID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectivity.Components()
}

// GetLocalToGlobalTransform returns the transform from trajectoryID's local
// frame to the global frame established by its own or a seeding
// trajectory's initial pose.
func (g *PoseGraph) GetLocalToGlobalTransform(trajectoryID id.TrajectoryID) geometry.Rigid2d {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.localToGlobalTransformLocked(trajectoryID)
}

// TrajectoryState returns the current lifecycle state of trajectoryID.
func (g *PoseGraph) TrajectoryState(trajectoryID id.TrajectoryID) mapping.TrajectoryState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trajectoryState[trajectoryID]
}

// DeletionState returns the current deletion-lifecycle state of
// trajectoryID.
func (g *PoseGraph) DeletionState(trajectoryID id.TrajectoryID) mapping.DeletionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deletionState[trajectoryID]
}

// SetInitialTrajectoryPose seeds trajectoryID's global frame before it has
// any optimized submap.
func (g *PoseGraph) SetInitialTrajectoryPose(trajectoryID id.TrajectoryID, seed mapping.InitialTrajectoryPose) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureTrajectoryLocked(trajectoryID)
	g.initialTrajectoryPose[trajectoryID] = seed
}
