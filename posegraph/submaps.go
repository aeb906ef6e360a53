package posegraph

import (
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/submap"
	"go.viam.com/slam-backend/workqueue"
)

// AddNode registers a scan-matched node produced by the front-end, tied to
// its one or two insertion submaps (a trajectory's most recent submap, and
// the one before it if the front-end is still straddling a submap
// boundary). It returns the freshly assigned node id and schedules
// constraint search for the node.
func (g *PoseGraph) AddNode(constantData mapping.TrajectoryNodeData, trajectoryID id.TrajectoryID, insertionSubmaps []submap.Submap) id.NodeID {
	g.mu.Lock()

	g.canAddWorkItemModifying(trajectoryID)
	g.ensureTrajectoryLocked(trajectoryID)

	nodeID := g.trajectoryNodes.Append(trajectoryID, mapping.TrajectoryNode{ConstantData: constantData})

	submapIDs := make([]id.SubmapID, 0, len(insertionSubmaps))
	for _, s := range insertionSubmaps {
		submapIDs = append(submapIDs, g.submapIDForLocked(trajectoryID, s))
	}

	newlyFinished := len(insertionSubmaps) > 0 && insertionSubmaps[0].Finished()

	// computeConstraintsForNode may report that this is the node that first
	// crosses the OptimizeEveryN threshold; if so, the completion barrier
	// must be registered only after g.mu is released below (see
	// maybeDispatchLocked), so the decision is captured here and acted on
	// after unlocking rather than inside the work item itself.
	needsRegister := false
	g.addWorkItem(workqueue.KindComputeConstraintsForNode, func() {
		needsRegister = g.computeConstraintsForNode(nodeID, submapIDs, newlyFinished)
	})

	g.mu.Unlock()

	if needsRegister {
		g.builder.WhenDone(g.runHandleWorkQueue)
	}

	return nodeID
}

// submapIDForLocked returns the SubmapID for s, appending a new
// InternalSubmapData entry the first time s is observed. The caller must
// hold g.mu.
func (g *PoseGraph) submapIDForLocked(trajectoryID id.TrajectoryID, s submap.Submap) id.SubmapID {
	for _, entry := range g.submapData.Trajectory(trajectoryID) {
		if entry.Data.Submap == s {
			return entry.ID
		}
	}
	return g.submapData.Append(trajectoryID, &mapping.InternalSubmapData{
		Submap: s,
		State:  mapping.SubmapActive,
	})
}

// AddSubmapFromProto inserts a submap already finished and globally posed by
// a prior session's optimization, as part of deserialization.
func (g *PoseGraph) AddSubmapFromProto(submapID id.SubmapID, s submap.Submap, globalPose geometry.Rigid2d) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.canAddWorkItemModifying(submapID.TrajectoryID)
	g.ensureTrajectoryLocked(submapID.TrajectoryID)

	g.addWorkItem(workqueue.KindMisc, func() {
		g.submapData.Insert(submapID, &mapping.InternalSubmapData{
			Submap: s,
			State:  mapping.SubmapFinished,
		})
		g.problem.InsertSubmap(submapID, globalPose)
	})
}

// AddNodeFromProto inserts a node already globally posed by a prior
// session's optimization, as part of deserialization.
func (g *PoseGraph) AddNodeFromProto(nodeID id.NodeID, constantData mapping.TrajectoryNodeData, globalPose geometry.Rigid2d) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.canAddWorkItemModifying(nodeID.TrajectoryID)
	g.ensureTrajectoryLocked(nodeID.TrajectoryID)

	g.addWorkItem(workqueue.KindMisc, func() {
		node := mapping.TrajectoryNode{
			ConstantData: constantData,
			GlobalPose:   geometry.Embed3D(globalPose),
		}
		g.trajectoryNodes.Insert(nodeID, node)
		g.problem.InsertTrajectoryNode(nodeID, mapping.NodeSpec{
			LocalPose2D:  constantData.LocalPose2D(),
			GlobalPose2D: globalPose,
			Time:         constantData.Time,
		})
	})
}

// AddSerializedConstraints appends a batch of already-decoded constraints
// (the proto wire format itself is handled upstream, outside this package).
// Constraints() returns them back out unchanged, so a
// AddSerializedConstraints/Constraints round trip is pose-equal to the
// input.
func (g *PoseGraph) AddSerializedConstraints(incoming []mapping.Constraint) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addWorkItem(workqueue.KindMisc, func() {
		g.constraintList = append(g.constraintList, incoming...)
	})
}
