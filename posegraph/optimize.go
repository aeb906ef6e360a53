package posegraph

import (
	"context"

	"go.viam.com/utils"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/workqueue"
)

// maybeDispatchLocked raises the loop-closure flag and, the first time it's
// called since the last optimization round settled, switches the graph into
// queued mode. It reports whether the caller must register the constraint
// builder's completion barrier once g.mu is released: registering it while
// still holding g.mu risks the builder firing it synchronously (every job
// for the batch just closed may have already settled) and deadlocking on a
// reentrant Lock. The caller must hold g.mu.
func (g *PoseGraph) maybeDispatchLocked() bool {
	g.runLoopClosure = true
	if g.workQueue != nil {
		return false
	}
	g.workQueue = workqueue.New()
	g.optimizationInFlight = true
	return true
}

// DispatchOptimization switches the graph into queued mode (if it isn't
// already) and registers the constraint builder's completion barrier; once
// every constraint job outstanding at this moment settles, handleWorkQueue
// runs the solve and folds its results back in, on its own goroutine so
// neither the registering caller nor a constraint-builder worker blocks on
// the solve. Safe to call from an unlocked context only.
func (g *PoseGraph) DispatchOptimization() {
	g.mu.Lock()
	needsRegister := g.maybeDispatchLocked()
	g.mu.Unlock()
	if needsRegister {
		g.builder.WhenDone(g.runHandleWorkQueue)
	}
}

// runHandleWorkQueue is the builder's registered WhenDone callback: it hands
// off to handleWorkQueue on a fresh, panic-capturing goroutine. The builder
// may invoke this inline from whichever goroutine last retired a job
// (possibly a constraint-builder pool worker, or the caller that just
// registered it if everything had already settled), and handleWorkQueue's
// solve/apply/trim/drain sequence is too heavy to run on either.
func (g *PoseGraph) runHandleWorkQueue(results []mapping.Constraint) {
	utils.PanicCapturingGo(func() {
		g.handleWorkQueue(results)
	})
}

// frozenTrajectoryIDsLocked returns the set of trajectories currently
// Frozen. The caller must hold g.mu.
func (g *PoseGraph) frozenTrajectoryIDsLocked() map[id.TrajectoryID]bool {
	out := make(map[id.TrajectoryID]bool)
	for trajectoryID, state := range g.trajectoryState {
		if state == mapping.TrajectoryFrozen {
			out[trajectoryID] = true
		}
	}
	return out
}

// snapshotLandmarksLocked returns a deep-enough copy of the landmark nodes
// (fresh structs, copied observation slices) so Solve can read them safely
// with the pose-graph lock released. The caller must hold g.mu.
func (g *PoseGraph) snapshotLandmarksLocked() map[string]*mapping.LandmarkNode {
	out := make(map[string]*mapping.LandmarkNode, len(g.landmarkNodes))
	for landmarkID, node := range g.landmarkNodes {
		observations := make([]mapping.LandmarkObservation, len(node.Observations))
		copy(observations, node.Observations)
		clone := &mapping.LandmarkNode{
			ID:           node.ID,
			Observations: observations,
		}
		if node.GlobalLandmarkPose != nil {
			pose := *node.GlobalLandmarkPose
			clone.GlobalLandmarkPose = &pose
		}
		out[landmarkID] = clone
	}
	return out
}

// handleWorkQueue runs a dispatched optimization round: it is delivered the
// batch of inter-submap constraints the constraint builder accepted since
// DispatchOptimization (or the previous round) registered its barrier. It
// folds them into the constraint list, runs the solver with the lock
// released, applies the result, fires the global callback, runs deletion
// and trimming, then drains the work queue until either it empties
// (returning the graph to direct mode) or a drained item re-raises
// runLoopClosure, in which case it re-registers the barrier before
// returning.
func (g *PoseGraph) handleWorkQueue(results []mapping.Constraint) {
	g.mu.Lock()
	g.constraintList = append(g.constraintList, results...)
	constraintsSnapshot := append([]mapping.Constraint(nil), g.constraintList...)
	frozen := g.frozenTrajectoryIDsLocked()
	landmarks := g.snapshotLandmarksLocked()
	g.mu.Unlock()

	if solveErr := g.problem.Solve(constraintsSnapshot, frozen, landmarks); solveErr != nil {
		g.logger.Warnf("pose graph optimization failed: %v", solveErr)
	}

	g.mu.Lock()
	lastSubmap, lastNode := g.applySolveResultsLocked()
	cb := g.globalSlamCallback
	g.mu.Unlock()

	if cb != nil {
		cb(lastSubmap, lastNode)
	}

	g.mu.Lock()
	g.deleteTrajectoriesIfNeededLocked()
	g.runTrimmersLocked()

	g.nodesSinceLastLoopClosure = 0
	g.runLoopClosure = false
	g.optimizationInFlight = false

	rearm := false
	for {
		if g.workQueue.Empty() {
			g.workQueue = nil
			break
		}
		item := g.workQueue.PopFront()
		item.Run()
		if g.runLoopClosure {
			rearm = true
			break
		}
	}
	g.mu.Unlock()

	if rearm {
		g.builder.WhenDone(g.runHandleWorkQueue)
	}
}

// applySolveResultsLocked overwrites node global poses from the solver,
// forward-propagates the last solved node's correction onto every node
// appended afterwards, updates connectivity from the newly-applied
// inter-submap constraints, and reports the last submap/node id touched per
// trajectory. globalSubmapPoses and landmark poses need no separate
// bookkeeping: GonumOptimizationProblem is itself safe for concurrent
// snapshot reads, so GetAllSubmapPoses/GetLandmarkPoses query it directly.
// The caller must hold g.mu.
func (g *PoseGraph) applySolveResultsLocked() (map[id.TrajectoryID]id.SubmapID, map[id.TrajectoryID]id.NodeID) {
	solvedNodePoses := g.problem.NodeData()

	lastSubmap := make(map[id.TrajectoryID]id.SubmapID)
	lastNode := make(map[id.TrajectoryID]id.NodeID)

	for _, trajectoryID := range g.trajectoryNodes.TrajectoryIDs() {
		entries := g.trajectoryNodes.Trajectory(trajectoryID)
		var shift geometry.Rigid3d = geometry.Identity3D()
		haveShift := false
		for _, entry := range entries {
			if newPose2D, ok := solvedNodePoses.At(entry.ID); ok {
				oldGlobal := entry.Data.GlobalPose
				newGlobal := geometry.Embed3D(newPose2D)
				entry.Data.GlobalPose = newGlobal
				g.trajectoryNodes.Set(entry.ID, entry.Data)
				shift = oldGlobal.Inverse().Compose(newGlobal)
				haveShift = true
				lastNode[trajectoryID] = entry.ID
			} else if haveShift {
				entry.Data.GlobalPose = entry.Data.GlobalPose.Compose(shift)
				g.trajectoryNodes.Set(entry.ID, entry.Data)
			}
		}
	}

	for _, trajectoryID := range g.submapData.TrajectoryIDs() {
		entries := g.submapData.Trajectory(trajectoryID)
		if len(entries) > 0 {
			lastSubmap[trajectoryID] = entries[len(entries)-1].ID
		}
	}

	for _, c := range g.constraintList {
		if c.Tag != mapping.InterSubmap {
			continue
		}
		if c.SubmapID.TrajectoryID == c.NodeID.TrajectoryID {
			continue
		}
		nodeEntry, ok := g.trajectoryNodes.At(c.NodeID)
		if !ok {
			continue
		}
		g.connectivity.Connect(c.SubmapID.TrajectoryID, c.NodeID.TrajectoryID, nodeEntry.ConstantData.Time)
	}

	return lastSubmap, lastNode
}

// deleteTrajectoriesIfNeededLocked removes every submap and node of a
// trajectory in WaitForDeletion, then flips it to Deleted/Normal. Submaps
// still Active are marked Finished first, since trimSubmapLocked only trims
// finished submaps. The caller must hold g.mu.
func (g *PoseGraph) deleteTrajectoriesIfNeededLocked() {
	for trajectoryID, state := range g.deletionState {
		if state != mapping.DeletionWaitForDeletion {
			continue
		}
		handle := trimmingHandle{g: g}
		for _, entry := range append([]id.Entry[id.SubmapID, *mapping.InternalSubmapData]{}, g.submapData.Trajectory(trajectoryID)...) {
			entry.Data.State = mapping.SubmapFinished
			handle.trimSubmapLocked(entry.ID)
		}
		for _, entry := range append([]id.Entry[id.NodeID, mapping.TrajectoryNode]{}, g.trajectoryNodes.Trajectory(trajectoryID)...) {
			g.trajectoryNodes.Trim(entry.ID)
			g.problem.TrimTrajectoryNode(entry.ID)
		}
		g.trajectoryState[trajectoryID] = mapping.TrajectoryDeleted
		g.deletionState[trajectoryID] = mapping.DeletionNormal
	}
}

// runTrimmersLocked invokes every registered trimmer and drops those that
// report IsFinished. The caller must hold g.mu.
func (g *PoseGraph) runTrimmersLocked() {
	handle := trimmingHandle{g: g}
	surviving := g.trimmers[:0]
	for _, t := range g.trimmers {
		t.Trim(handle)
		if !t.IsFinished() {
			surviving = append(surviving, t)
		}
	}
	g.trimmers = surviving
}

// RunFinalOptimization runs one last optimization round with an overridden
// iteration cap, then blocks until the graph is fully quiescent again.
func (g *PoseGraph) RunFinalOptimization(ctx context.Context) error {
	g.mu.Lock()
	previous := g.opts.MaxNumFinalIterations
	g.addWorkItem(workqueue.KindOptimization, func() {
		g.problem.SetMaxNumIterations(g.opts.MaxNumFinalIterations)
	})
	g.mu.Unlock()

	g.DispatchOptimization()

	g.mu.Lock()
	g.addWorkItem(workqueue.KindOptimization, func() {
		g.problem.SetMaxNumIterations(previous)
	})
	g.mu.Unlock()

	return g.WaitForAllComputations(ctx)
}
