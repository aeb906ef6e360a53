// Package constraints implements the constraint builder: it samples and
// schedules candidate submap-vs-node scan matches on a worker pool,
// coalesces the results of one node's batch, and signals a completion
// barrier the first time no submitted job is left outstanding after a
// registration.
package constraints

import (
	"math/rand"
	"sync"
	"time"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/internal/workerpool"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/metrics"
	"go.viam.com/slam-backend/submap"
)

// Options carries the builder's tuning parameters.
type Options struct {
	// SamplingRatio is the probability a MaybeAddConstraint call actually
	// schedules a local scan match.
	SamplingRatio float64
	// MinScore is the minimum local-match score accepted as a constraint.
	MinScore float64
	// GlobalLocalizationMinScore is the (typically higher) minimum score
	// required for a global match to be accepted.
	GlobalLocalizationMinScore float64
	// MatcherTranslationWeight and MatcherRotationWeight are applied to
	// every constraint this builder emits.
	MatcherTranslationWeight float64
	MatcherRotationWeight    float64
}

// nodeBatch tracks the scan-match jobs submitted for a single node, between
// one NotifyEndOfNode call and the next. remaining is the count of jobs
// belonging to this batch that haven't finished yet; closed marks that
// NotifyEndOfNode has been called for it, so it can be finalized (counted
// toward numFinishedNodes) as soon as remaining reaches zero, whether that
// happens before or after closing.
type nodeBatch struct {
	remaining int
	closed    bool
}

// Builder is the constraint builder. It is safe for concurrent use.
type Builder struct {
	pool           *workerpool.Pool
	newScanMatcher Factory
	opts           Options
	rng            *rand.Rand
	reporter       metrics.Reporter

	mu       sync.Mutex
	matchers map[id.SubmapID]ScanMatcher
	// current is the batch jobs submitted right now belong to; it is
	// replaced with a fresh batch every time NotifyEndOfNode closes it.
	current *nodeBatch
	// pending accumulates accepted constraints across every batch that has
	// closed since the last WhenDone delivery, whether or not a callback
	// was registered while they settled.
	pending []mapping.Constraint
	// outstandingJobs is the total count of not-yet-settled jobs across
	// every batch, open or closed. WhenDone fires once this reaches zero.
	outstandingJobs  int
	whenDone         func([]mapping.Constraint)
	numFinishedNodes int
}

// New constructs a Builder that submits scan-match jobs to pool, building
// scan matchers with newScanMatcher.
func New(pool *workerpool.Pool, newScanMatcher Factory, opts Options) *Builder {
	return &Builder{
		pool:           pool,
		newScanMatcher: newScanMatcher,
		opts:           opts,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		matchers:       make(map[id.SubmapID]ScanMatcher),
		current:        &nodeBatch{},
		reporter:       metrics.NopReporter{},
	}
}

// SetReporter installs r as the destination for this builder's job-count
// and acceptance-rate metrics.
func (b *Builder) SetReporter(r metrics.Reporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reporter = r
}

// matcherLocked returns the memoized ScanMatcher for submapID, constructing
// it lazily on first use. Callers must hold b.mu.
func (b *Builder) matcherLocked(submapID id.SubmapID, s submap.Submap) ScanMatcher {
	if m, ok := b.matchers[submapID]; ok {
		return m
	}
	m := b.newScanMatcher(s)
	b.matchers[submapID] = m
	return m
}

// MaybeAddConstraint samples with probability SamplingRatio; on a miss it
// returns immediately. On a hit it reserves a result slot and schedules a
// local scan match against submap's matcher, accepted as an InterSubmap
// constraint if the score clears MinScore.
func (b *Builder) MaybeAddConstraint(submapID id.SubmapID, s submap.Submap, nodeID id.NodeID, nodeData mapping.TrajectoryNodeData, initialRelativePose geometry.Rigid2d) {
	b.mu.Lock()
	if b.rng.Float64() >= b.opts.SamplingRatio {
		b.mu.Unlock()
		return
	}
	batch := b.current
	batch.remaining++
	b.outstandingJobs++
	matcher := b.matcherLocked(submapID, s)
	b.mu.Unlock()

	b.pool.Submit(func() {
		relativePose, score := matcher.MatchLocal(s, nodeData, initialRelativePose)
		b.finishJob(batch, submapID, nodeID, relativePose, score, b.opts.MinScore)
	})
}

// MaybeAddGlobalConstraint always schedules a full-submap search, accepted
// if the score clears GlobalLocalizationMinScore.
func (b *Builder) MaybeAddGlobalConstraint(submapID id.SubmapID, s submap.Submap, nodeID id.NodeID, nodeData mapping.TrajectoryNodeData) {
	b.mu.Lock()
	batch := b.current
	batch.remaining++
	b.outstandingJobs++
	matcher := b.matcherLocked(submapID, s)
	b.mu.Unlock()

	b.pool.Submit(func() {
		relativePose, score := matcher.MatchGlobal(s, nodeData)
		b.finishJob(batch, submapID, nodeID, relativePose, score, b.opts.GlobalLocalizationMinScore)
	})
}

// finishJob records a job's result (if it cleared minScore), retires it from
// its batch and from the global outstanding count, finalizes the batch into
// numFinishedNodes if that was its last job and it's already closed, and
// fires the barrier callback if one is registered and nothing is left
// outstanding across every batch.
func (b *Builder) finishJob(batch *nodeBatch, submapID id.SubmapID, nodeID id.NodeID, relativePose geometry.Rigid2d, score, minScore float64) {
	b.mu.Lock()
	if score >= minScore {
		b.pending = append(b.pending, mapping.Constraint{
			SubmapID: submapID,
			NodeID:   nodeID,
			Pose: mapping.PoseWeight{
				RelativePose:      relativePose,
				TranslationWeight: b.opts.MatcherTranslationWeight,
				RotationWeight:    b.opts.MatcherRotationWeight,
			},
			Tag: mapping.InterSubmap,
		})
	}
	batch.remaining--
	b.outstandingJobs--
	if batch.remaining == 0 && batch.closed {
		b.numFinishedNodes++
		b.reporter.Report("constraints.num_finished_nodes", float64(b.numFinishedNodes))
	}
	cb, results, fire := b.checkDoneLocked()
	outstanding := b.outstandingJobs
	reporter := b.reporter
	b.mu.Unlock()
	reporter.Report("constraints.unfinished_jobs", float64(outstanding))
	if fire {
		cb(results)
	}
}

// NotifyEndOfNode closes the current node's batch: no further jobs will be
// submitted to it. If it had no outstanding jobs it is finalized
// immediately (numFinishedNodes advances right away); otherwise it's
// finalized later by whichever finishJob call retires its last job. Either
// way a fresh batch opens for whatever MaybeAddConstraint calls follow.
func (b *Builder) NotifyEndOfNode() {
	b.mu.Lock()
	batch := b.current
	batch.closed = true
	if batch.remaining == 0 {
		b.numFinishedNodes++
		b.reporter.Report("constraints.num_finished_nodes", float64(b.numFinishedNodes))
	}
	b.current = &nodeBatch{}
	cb, results, fire := b.checkDoneLocked()
	b.mu.Unlock()
	if fire {
		cb(results)
	}
}

// WhenDone registers a one-shot terminal callback. It fires the first time
// no job is outstanding across any batch (closed or still open): at once if
// nothing is outstanding when it is registered, otherwise when the last
// outstanding job settles, jobs submitted after this call included. It
// delivers every accepted constraint accumulated since the last delivery.
// At most one registration may be pending at a time.
func (b *Builder) WhenDone(callback func([]mapping.Constraint)) {
	b.mu.Lock()
	b.whenDone = callback
	cb, results, fire := b.checkDoneLocked()
	b.mu.Unlock()
	if fire {
		cb(results)
	}
}

// checkDoneLocked reports whether the barrier should fire right now, and if
// so resets the builder's pending-delivery state and returns the callback
// plus its results. Callers must hold b.mu and must invoke the returned
// callback only after releasing it.
func (b *Builder) checkDoneLocked() (func([]mapping.Constraint), []mapping.Constraint, bool) {
	if b.whenDone == nil || b.outstandingJobs != 0 {
		return nil, nil, false
	}
	results := b.pending
	b.pending = nil
	cb := b.whenDone
	b.whenDone = nil
	b.reporter.Report("constraints.accepted_per_dispatch", float64(len(results)))
	return cb, results, true
}

// GetNumFinishedNodes returns the number of node batches that have fully
// drained so far, independent of whether a WhenDone callback was registered
// while they did.
func (b *Builder) GetNumFinishedNodes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numFinishedNodes
}

// DeleteScanMatcher drops the cached matcher for submapID, if any.
func (b *Builder) DeleteScanMatcher(submapID id.SubmapID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.matchers, submapID)
}
