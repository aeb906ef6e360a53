// Package posegraph implements the pose graph: the canonical state machine
// that owns submaps, trajectory nodes, constraints, landmark nodes and
// trajectory lifecycle state, mediates every mutation through a single
// mutex and work queue, drives constraint search for new nodes, dispatches
// optimization rounds, folds results back into global poses, and runs
// trimmers.
package posegraph

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.viam.com/slam-backend/connectivity"
	"go.viam.com/slam-backend/constraints"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/optimization"
	"go.viam.com/slam-backend/trimmer"
	"go.viam.com/slam-backend/workqueue"
)

// logger is the narrow subset of golog.Logger's interface the pose graph
// calls; any golog.Logger satisfies it.
type logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Options carries the pose graph's tuning parameters.
type Options struct {
	OptimizeEveryN               int
	MatcherTranslationWeight     float64
	MatcherRotationWeight        float64
	GlobalConstraintSearchAfterN time.Duration
	GlobalSamplingRatio          float64
	MaxNumFinalIterations        int
}

// GlobalSlamOptimizationCallback is invoked once per completed optimization
// batch with the last solved submap and node per trajectory. It is called
// without the pose graph's lock held, since applications commonly re-enter
// the graph from inside it.
type GlobalSlamOptimizationCallback func(lastSubmap map[id.TrajectoryID]id.SubmapID, lastNode map[id.TrajectoryID]id.NodeID)

// PoseGraph is the back-end's canonical state. All exported methods are
// safe for concurrent use.
type PoseGraph struct {
	mu sync.Mutex

	logger  logger
	opts    Options
	builder *constraints.Builder
	problem optimization.OptimizationProblem

	submapData      *id.MapById[id.SubmapID, *mapping.InternalSubmapData]
	trajectoryNodes *id.MapById[id.NodeID, mapping.TrajectoryNode]
	constraintList  []mapping.Constraint
	landmarkNodes   map[string]*mapping.LandmarkNode

	trajectoryState       map[id.TrajectoryID]mapping.TrajectoryState
	deletionState         map[id.TrajectoryID]mapping.DeletionState
	initialTrajectoryPose map[id.TrajectoryID]mapping.InitialTrajectoryPose

	connectivity *connectivity.State

	trimmers []trimmer.Trimmer

	workQueue                 *workqueue.Queue
	nodesSinceLastLoopClosure int
	runLoopClosure            bool
	optimizationInFlight      bool

	globalSlamCallback GlobalSlamOptimizationCallback

	// knownSubmaps tracks which submaps have already been handed to the
	// optimization adapter, so initializeGlobalSubmapPosesLocked only seeds each
	// submap once.
	knownSubmaps map[id.SubmapID]bool

	rng *rand.Rand
}

func newSubmapID(t id.TrajectoryID, i int) id.SubmapID { return id.SubmapID{TrajectoryID: t, SubmapIndex: i} }
func newNodeID(t id.TrajectoryID, i int) id.NodeID     { return id.NodeID{TrajectoryID: t, NodeIndex: i} }

// New constructs an empty pose graph driven by builder (constraint search)
// and problem (the optimization adapter).
func New(lg logger, opts Options, builder *constraints.Builder, problem optimization.OptimizationProblem) *PoseGraph {
	return &PoseGraph{
		logger:                lg,
		opts:                  opts,
		builder:               builder,
		problem:               problem,
		submapData:            id.NewMapById[id.SubmapID, *mapping.InternalSubmapData](newSubmapID),
		trajectoryNodes:       id.NewMapById[id.NodeID, mapping.TrajectoryNode](newNodeID),
		landmarkNodes:         make(map[string]*mapping.LandmarkNode),
		trajectoryState:       make(map[id.TrajectoryID]mapping.TrajectoryState),
		deletionState:         make(map[id.TrajectoryID]mapping.DeletionState),
		initialTrajectoryPose: make(map[id.TrajectoryID]mapping.InitialTrajectoryPose),
		connectivity:          connectivity.NewState(),
		knownSubmaps:          make(map[id.SubmapID]bool),
		rng:                   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetGlobalSlamOptimizationCallback registers cb to be invoked once per
// completed optimization batch.
func (g *PoseGraph) SetGlobalSlamOptimizationCallback(cb GlobalSlamOptimizationCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globalSlamCallback = cb
}

// addWorkItem runs f immediately if the graph is in direct mode (no work
// queue yet), or enqueues it to run later if a work queue is active. The
// caller must hold g.mu.
func (g *PoseGraph) addWorkItem(kind workqueue.Kind, f func()) {
	if g.workQueue == nil {
		f()
		return
	}
	g.workQueue.PushBack(kind, f)
}

// canAddWorkItemModifying enforces the lifecycle contract for a modifying
// call against trajectoryID: a reference to an unknown trajectory is
// logged as a warning (the trajectory may simply not exist yet, e.g. the
// very first node), but a reference to a Finished or Deleted trajectory, or
// one already scheduled for deletion, is a fatal invariant violation. The
// caller must hold g.mu.
func (g *PoseGraph) canAddWorkItemModifying(trajectoryID id.TrajectoryID) bool {
	state, ok := g.trajectoryState[trajectoryID]
	if !ok {
		g.logger.Warnf("modifying unknown trajectory %d", trajectoryID)
		return true
	}
	if state == mapping.TrajectoryFinished || state == mapping.TrajectoryDeleted {
		raiseInvariant(g.logger, "cannot modify trajectory %d in state %s", trajectoryID, state)
	}
	if g.deletionState[trajectoryID] == mapping.DeletionScheduledForDeletion {
		raiseInvariant(g.logger, "cannot modify trajectory %d scheduled for deletion", trajectoryID)
	}
	return true
}

func (g *PoseGraph) ensureTrajectoryLocked(trajectoryID id.TrajectoryID) {
	if _, ok := g.trajectoryState[trajectoryID]; !ok {
		g.trajectoryState[trajectoryID] = mapping.TrajectoryActive
		g.deletionState[trajectoryID] = mapping.DeletionNormal
		g.connectivity.Add(trajectoryID)
	}
}

// WaitForAllComputations blocks, polling on a short ticker, until the
// constraint builder has drained every node batch and the work queue is
// empty, or ctx is done. This matches cartographer's timed-condition-
// variable wait: no sync.Cond appears anywhere in this codebase's
// concurrency idioms, so a ticker + context.Done() select is used instead.
func (g *PoseGraph) WaitForAllComputations(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		g.mu.Lock()
		quiescent := g.workQueue == nil && !g.optimizationInFlight &&
			g.builder.GetNumFinishedNodes() == g.trajectoryNodes.Len()
		g.mu.Unlock()
		if quiescent {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
