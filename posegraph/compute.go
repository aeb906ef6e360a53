package posegraph

import (
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
)

// computeConstraintsForNode runs the full constraint-search sequence for a
// freshly inserted node: it seeds the optimizer with any new
// submap poses, hands the node's local/global poses to the optimizer,
// emits an intra-submap constraint per insertion submap, samples
// loop-closure candidates against every other finished submap, flips a
// newly finished submap's state and searches it against every older node,
// then notifies the constraint builder and advances the loop-closure
// counter. It reports whether the caller must register the constraint
// builder's completion barrier once it releases g.mu (see
// maybeDispatchLocked). The caller must hold g.mu.
func (g *PoseGraph) computeConstraintsForNode(nodeID id.NodeID, submapIDs []id.SubmapID, newlyFinished bool) bool {
	trajectoryID := nodeID.TrajectoryID
	nodeEntry, ok := g.trajectoryNodes.At(nodeID)
	if !ok {
		return false
	}
	nodeData := nodeEntry.ConstantData

	// Step 1.
	g.initializeGlobalSubmapPosesLocked(trajectoryID, submapIDs)

	// Step 2.
	localPose2D := nodeData.LocalPose2D()
	var globalPose2D geometry.Rigid2d
	if len(submapIDs) > 0 {
		frontSubmap, _ := g.submapData.At(submapIDs[0])
		frontLocal2D := frontSubmap.Submap.LocalPose().Project2D()
		frontGlobal, _ := g.problem.SubmapData().At(submapIDs[0])
		globalPose2D = frontGlobal.Compose(frontLocal2D.Inverse().Compose(localPose2D))
	} else {
		globalPose2D = localPose2D
	}
	g.problem.AddTrajectoryNode(nodeID, mapping.NodeSpec{
		LocalPose2D:  localPose2D,
		GlobalPose2D: globalPose2D,
		Time:         nodeData.Time,
	})

	// Step 3: intra-submap constraints.
	for _, submapID := range submapIDs {
		data, ok := g.submapData.At(submapID)
		if !ok {
			continue
		}
		if data.State != mapping.SubmapActive {
			raiseInvariant(g.logger, "node %s references non-active submap %s", nodeID, submapID)
		}
		data.AddNodeID(nodeID)
		localSubmapPose := data.Submap.LocalPose().Project2D()
		g.constraintList = append(g.constraintList, mapping.Constraint{
			SubmapID: submapID,
			NodeID:   nodeID,
			Pose: mapping.PoseWeight{
				RelativePose:      localSubmapPose.Inverse().Compose(localPose2D),
				TranslationWeight: g.opts.MatcherTranslationWeight,
				RotationWeight:    g.opts.MatcherRotationWeight,
			},
			Tag: mapping.IntraSubmap,
		})
	}

	// Step 4: candidate loop closures against every other finished submap.
	submapPoses := g.problem.SubmapData()
	for _, entry := range g.submapData.Range() {
		if entry.Data.State != mapping.SubmapFinished {
			continue
		}
		if entry.Data.HasNodeID(nodeID) {
			continue
		}
		g.computeConstraintLocked(nodeID, nodeData, localPose2D, entry.ID, entry.Data, submapPoses, globalPose2D)
	}

	// Step 5: flip a newly finished submap and search it against every
	// older node.
	if newlyFinished {
		finishedSubmapID := submapIDs[0]
		finishedData, ok := g.submapData.At(finishedSubmapID)
		if ok {
			finishedData.State = mapping.SubmapFinished
			g.submapData.Set(finishedSubmapID, finishedData)
			g.computeConstraintsForOldNodesLocked(finishedSubmapID, finishedData)
		}
	}

	// Step 6.
	g.builder.NotifyEndOfNode()
	g.nodesSinceLastLoopClosure++
	if g.opts.OptimizeEveryN > 0 && g.nodesSinceLastLoopClosure > g.opts.OptimizeEveryN && !g.runLoopClosure {
		return g.maybeDispatchLocked()
	}
	return false
}

// initializeGlobalSubmapPosesLocked seeds the optimizer with a global pose
// for every submap in submapIDs not yet known to it. The first (front)
// submap of a trajectory is seeded from the trajectory's local-to-global
// transform; a second (back) submap inherits the front submap's already-
// optimized global pose composed with their local relative transform. The
// caller must hold g.mu.
func (g *PoseGraph) initializeGlobalSubmapPosesLocked(trajectoryID id.TrajectoryID, submapIDs []id.SubmapID) {
	for i, submapID := range submapIDs {
		if g.knownSubmaps[submapID] {
			continue
		}
		data, ok := g.submapData.At(submapID)
		if !ok {
			continue
		}
		local2D := data.Submap.LocalPose().Project2D()

		var global geometry.Rigid2d
		if i == 0 {
			global = g.localToGlobalTransformLocked(trajectoryID).Compose(local2D)
		} else {
			frontID := submapIDs[i-1]
			frontData, _ := g.submapData.At(frontID)
			frontLocal2D := frontData.Submap.LocalPose().Project2D()
			frontGlobal, frontOK := g.problem.SubmapData().At(frontID)
			if !frontOK {
				frontGlobal = g.localToGlobalTransformLocked(trajectoryID).Compose(frontLocal2D)
			}
			global = frontGlobal.Compose(frontLocal2D.Inverse().Compose(local2D))
		}
		g.problem.AddSubmap(submapID, global)
		g.knownSubmaps[submapID] = true
	}
}

// localToGlobalTransformLocked returns the transform from trajectoryID's
// local frame to the global frame: identity unless an initial trajectory
// pose seed ties it to another trajectory's frame. The caller must hold
// g.mu.
func (g *PoseGraph) localToGlobalTransformLocked(trajectoryID id.TrajectoryID) geometry.Rigid2d {
	seed, ok := g.initialTrajectoryPose[trajectoryID]
	if !ok {
		return geometry.Identity2D()
	}
	toGlobal := g.localToGlobalTransformLocked(seed.ToTrajectoryID)
	return toGlobal.Compose(seed.RelativePose.Project2D())
}

// computeConstraintLocked schedules a loop-closure candidate between nodeID
// and submapID: a local-window search if they share a trajectory or were
// recently connected, otherwise a probabilistically sampled global search.
// The caller must hold g.mu.
func (g *PoseGraph) computeConstraintLocked(
	nodeID id.NodeID,
	nodeData mapping.TrajectoryNodeData,
	localPose2D geometry.Rigid2d,
	submapID id.SubmapID,
	data *mapping.InternalSubmapData,
	submapPoses *id.MapById[id.SubmapID, geometry.Rigid2d],
	nodeGlobalPose2D geometry.Rigid2d,
) {
	sameTrajectory := submapID.TrajectoryID == nodeID.TrajectoryID
	lastConnection := g.connectivity.LastConnectionTime(submapID.TrajectoryID, nodeID.TrajectoryID)
	recentlyConnected := !lastConnection.IsZero() &&
		nodeData.Time.Sub(lastConnection) <= g.opts.GlobalConstraintSearchAfterN

	localSubmapPose := data.Submap.LocalPose().Project2D()
	initialRelativePose := localSubmapPose.Inverse().Compose(localPose2D)
	if submapGlobal, ok := submapPoses.At(submapID); ok {
		initialRelativePose = submapGlobal.Inverse().Compose(nodeGlobalPose2D)
	}

	if sameTrajectory || recentlyConnected {
		g.builder.MaybeAddConstraint(submapID, data.Submap, nodeID, nodeData, initialRelativePose)
		return
	}
	if g.rng.Float64() < g.opts.GlobalSamplingRatio {
		g.builder.MaybeAddGlobalConstraint(submapID, data.Submap, nodeID, nodeData)
	}
}

// computeConstraintsForOldNodesLocked searches a just-finished submap
// against every node in the optimizer's node set not already tied to it.
// The caller must hold g.mu.
func (g *PoseGraph) computeConstraintsForOldNodesLocked(finishedSubmapID id.SubmapID, data *mapping.InternalSubmapData) {
	submapPoses := g.problem.SubmapData()
	nodePoses := g.problem.NodeData()
	for _, entry := range nodePoses.Range() {
		if data.HasNodeID(entry.ID) {
			continue
		}
		node, ok := g.trajectoryNodes.At(entry.ID)
		if !ok {
			continue
		}
		localPose2D := node.ConstantData.LocalPose2D()
		g.computeConstraintLocked(entry.ID, node.ConstantData, localPose2D, finishedSubmapID, data, submapPoses, entry.Data)
	}
}

