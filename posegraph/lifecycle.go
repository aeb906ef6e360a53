package posegraph

import (
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/trimmer"
	"go.viam.com/slam-backend/workqueue"
)

// FinishTrajectory transitions trajectoryID from Active to Finished,
// marking every one of its submaps Finished, then dispatches an
// optimization round.
func (g *PoseGraph) FinishTrajectory(trajectoryID id.TrajectoryID) {
	g.mu.Lock()
	g.canAddWorkItemModifying(trajectoryID)
	g.addWorkItem(workqueue.KindTrajectoryLifecycle, func() {
		g.trajectoryState[trajectoryID] = mapping.TrajectoryFinished
		for _, entry := range g.submapData.Trajectory(trajectoryID) {
			entry.Data.State = mapping.SubmapFinished
		}
	})
	g.mu.Unlock()

	g.DispatchOptimization()
}

// FreezeTrajectory transitions trajectoryID from Active to Frozen. Its
// submaps continue to contribute constraints but the optimizer holds their
// pose parameters fixed.
func (g *PoseGraph) FreezeTrajectory(trajectoryID id.TrajectoryID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canAddWorkItemModifying(trajectoryID)
	g.ensureTrajectoryLocked(trajectoryID)
	g.addWorkItem(workqueue.KindTrajectoryLifecycle, func() {
		g.trajectoryState[trajectoryID] = mapping.TrajectoryFrozen
		g.connectivity.Add(trajectoryID)
	})
}

// DeleteTrajectory marks trajectoryID ScheduledForDeletion synchronously,
// then enqueues the flip to WaitForDeletion; the trajectory's submaps and
// nodes are actually removed by the next optimization round's
// deleteTrajectoriesIfNeededLocked.
func (g *PoseGraph) DeleteTrajectory(trajectoryID id.TrajectoryID) {
	g.mu.Lock()
	g.canAddWorkItemModifying(trajectoryID)
	g.deletionState[trajectoryID] = mapping.DeletionScheduledForDeletion
	g.addWorkItem(workqueue.KindTrajectoryLifecycle, func() {
		g.deletionState[trajectoryID] = mapping.DeletionWaitForDeletion
	})
	g.mu.Unlock()
}

// AddTrimmer registers t to run after every future optimization round,
// until it reports IsFinished.
func (g *PoseGraph) AddTrimmer(t trimmer.Trimmer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addWorkItem(workqueue.KindTrimmer, func() {
		g.trimmers = append(g.trimmers, t)
	})
}
