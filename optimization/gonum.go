package optimization

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/metrics"
)

// constraintResidualShards is the number of concurrent shards the
// constraint residual sum is split across per objective evaluation.
// minConstraintsPerShard is the total constraint count below which the sum
// is computed serially, since the split overhead isn't worth it.
const constraintResidualShards = 4
const minConstraintsPerShard = 64

type imuSample struct {
	time                time.Time
	linearAcceleration  [3]float64
	angularVelocity     [3]float64
}

type odometrySample struct {
	time time.Time
	pose geometry.Rigid3d
}

// GonumOptimizationProblem is the only OptimizationProblem implementation.
// It is safe for concurrent use; Solve is the one long call meant to run
// with the caller's own lock released.
type GonumOptimizationProblem struct {
	mu sync.Mutex

	submapPoses    *id.MapById[id.SubmapID, geometry.Rigid2d]
	nodePoses      *id.MapById[id.NodeID, geometry.Rigid2d]
	nodeSpecs      map[id.NodeID]mapping.NodeSpec
	nodeTrajectory map[id.NodeID]id.TrajectoryID
	landmarkPoses  map[string]geometry.Rigid2d

	imuData      map[id.TrajectoryID][]imuSample
	odometryData map[id.TrajectoryID][]odometrySample

	maxNumIterations int
	reporter         metrics.Reporter
}

// New returns an empty GonumOptimizationProblem.
func New() *GonumOptimizationProblem {
	return &GonumOptimizationProblem{
		submapPoses:    id.NewMapById[id.SubmapID, geometry.Rigid2d](newSubmapID),
		nodePoses:      id.NewMapById[id.NodeID, geometry.Rigid2d](newNodeID),
		nodeSpecs:      make(map[id.NodeID]mapping.NodeSpec),
		nodeTrajectory: make(map[id.NodeID]id.TrajectoryID),
		landmarkPoses:  make(map[string]geometry.Rigid2d),
		imuData:        make(map[id.TrajectoryID][]imuSample),
		odometryData:   make(map[id.TrajectoryID][]odometrySample),
		reporter:       metrics.NopReporter{},
	}
}

// SetReporter installs r as the destination for this problem's solve
// metrics. A Solve already running keeps reporting to the reporter it
// picked up when it started.
func (p *GonumOptimizationProblem) SetReporter(r metrics.Reporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reporter = r
}

// AddSubmap implements OptimizationProblem.
func (p *GonumOptimizationProblem) AddSubmap(submapID id.SubmapID, initialGlobalPose geometry.Rigid2d) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submapPoses.Insert(submapID, initialGlobalPose)
}

// InsertSubmap implements OptimizationProblem. Unlike AddSubmap it upserts,
// since the deserialization path may re-insert a submap id already known
// from a prior session.
func (p *GonumOptimizationProblem) InsertSubmap(submapID id.SubmapID, pose geometry.Rigid2d) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.submapPoses.Set(submapID, pose) {
		p.submapPoses.Insert(submapID, pose)
	}
}

// TrimSubmap implements OptimizationProblem.
func (p *GonumOptimizationProblem) TrimSubmap(submapID id.SubmapID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submapPoses.Trim(submapID)
}

// AddTrajectoryNode implements OptimizationProblem.
func (p *GonumOptimizationProblem) AddTrajectoryNode(nodeID id.NodeID, spec mapping.NodeSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodePoses.Insert(nodeID, spec.GlobalPose2D)
	p.nodeSpecs[nodeID] = spec
	p.nodeTrajectory[nodeID] = nodeID.TrajectoryID
}

// InsertTrajectoryNode implements OptimizationProblem.
func (p *GonumOptimizationProblem) InsertTrajectoryNode(nodeID id.NodeID, spec mapping.NodeSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.nodePoses.Set(nodeID, spec.GlobalPose2D) {
		p.nodePoses.Insert(nodeID, spec.GlobalPose2D)
	}
	p.nodeSpecs[nodeID] = spec
	p.nodeTrajectory[nodeID] = nodeID.TrajectoryID
}

// TrimTrajectoryNode implements OptimizationProblem.
func (p *GonumOptimizationProblem) TrimTrajectoryNode(nodeID id.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodePoses.Trim(nodeID)
	delete(p.nodeSpecs, nodeID)
	delete(p.nodeTrajectory, nodeID)
}

// AddImuData implements OptimizationProblem. The current least-squares
// objective does not incorporate IMU priors (inertial fusion is the
// front-end's job, out of scope here); samples are retained only so a
// future objective term could use them.
func (p *GonumOptimizationProblem) AddImuData(trajectoryID id.TrajectoryID, t time.Time, linearAcceleration, angularVelocity [3]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imuData[trajectoryID] = append(p.imuData[trajectoryID], imuSample{t, linearAcceleration, angularVelocity})
}

// AddOdometryData implements OptimizationProblem, with the same "retained
// but not yet part of the objective" caveat as AddImuData.
func (p *GonumOptimizationProblem) AddOdometryData(trajectoryID id.TrajectoryID, t time.Time, pose geometry.Rigid3d) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.odometryData[trajectoryID] = append(p.odometryData[trajectoryID], odometrySample{t, pose})
}

// SetMaxNumIterations implements OptimizationProblem.
func (p *GonumOptimizationProblem) SetMaxNumIterations(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxNumIterations = n
}

// SubmapData implements OptimizationProblem, returning a snapshot.
func (p *GonumOptimizationProblem) SubmapData() *id.MapById[id.SubmapID, geometry.Rigid2d] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneSubmapPoses(p.submapPoses)
}

// NodeData implements OptimizationProblem, returning a snapshot.
func (p *GonumOptimizationProblem) NodeData() *id.MapById[id.NodeID, geometry.Rigid2d] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneNodePoses(p.nodePoses)
}

// LandmarkData implements OptimizationProblem, returning a snapshot.
func (p *GonumOptimizationProblem) LandmarkData() map[string]geometry.Rigid2d {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]geometry.Rigid2d, len(p.landmarkPoses))
	for k, v := range p.landmarkPoses {
		out[k] = v
	}
	return out
}

func cloneSubmapPoses(m *id.MapById[id.SubmapID, geometry.Rigid2d]) *id.MapById[id.SubmapID, geometry.Rigid2d] {
	out := id.NewMapById[id.SubmapID, geometry.Rigid2d](newSubmapID)
	for _, e := range m.Range() {
		out.Insert(e.ID, e.Data)
	}
	return out
}

func cloneNodePoses(m *id.MapById[id.NodeID, geometry.Rigid2d]) *id.MapById[id.NodeID, geometry.Rigid2d] {
	out := id.NewMapById[id.NodeID, geometry.Rigid2d](newNodeID)
	for _, e := range m.Range() {
		out.Insert(e.ID, e.Data)
	}
	return out
}

// paramBlock is a flat offset into the solver's parameter vector for one
// (x, y, heading) pose.
type paramBlock struct {
	submaps    map[id.SubmapID]int
	nodes      map[id.NodeID]int
	landmarks  map[string]int
	numParams  int
}

func vec3ToPose(x []float64, offset int) geometry.Rigid2d {
	return geometry.NewRigid2D(x[offset], x[offset+1], x[offset+2])
}

func poseToVec3(x []float64, offset int, p geometry.Rigid2d) {
	x[offset] = p.Translation.X
	x[offset+1] = p.Translation.Y
	x[offset+2] = p.Heading
}

// Solve implements OptimizationProblem.
func (p *GonumOptimizationProblem) Solve(
	constraints []mapping.Constraint,
	frozenTrajectoryIDs map[id.TrajectoryID]bool,
	landmarkNodes map[string]*mapping.LandmarkNode,
) error {
	p.mu.Lock()
	submapEntries := p.submapPoses.Range()
	nodeEntries := p.nodePoses.Range()
	nodeSpecs := make(map[id.NodeID]mapping.NodeSpec, len(p.nodeSpecs))
	for k, v := range p.nodeSpecs {
		nodeSpecs[k] = v
	}
	nodeTrajectory := make(map[id.NodeID]id.TrajectoryID, len(p.nodeTrajectory))
	for k, v := range p.nodeTrajectory {
		nodeTrajectory[k] = v
	}
	maxIterations := p.maxNumIterations
	reporter := p.reporter
	p.mu.Unlock()

	blocks := paramBlock{
		submaps:   make(map[id.SubmapID]int),
		nodes:     make(map[id.NodeID]int),
		landmarks: make(map[string]int),
	}
	x0 := make([]float64, 0, (len(submapEntries)+len(nodeEntries)+len(landmarkNodes))*3)

	for _, e := range submapEntries {
		if frozenTrajectoryIDs[e.ID.TrajectoryID] {
			continue
		}
		blocks.submaps[e.ID] = len(x0)
		x0 = append(x0, e.Data.Translation.X, e.Data.Translation.Y, e.Data.Heading)
	}
	for _, e := range nodeEntries {
		if frozenTrajectoryIDs[nodeTrajectory[e.ID]] {
			continue
		}
		blocks.nodes[e.ID] = len(x0)
		x0 = append(x0, e.Data.Translation.X, e.Data.Translation.Y, e.Data.Heading)
	}
	landmarkIDs := make([]string, 0, len(landmarkNodes))
	for landmarkID := range landmarkNodes {
		landmarkIDs = append(landmarkIDs, landmarkID)
	}
	sort.Strings(landmarkIDs)
	p.mu.Lock()
	for _, landmarkID := range landmarkIDs {
		initial, ok := p.landmarkPoses[landmarkID]
		if !ok {
			initial = geometry.Identity2D()
		}
		blocks.landmarks[landmarkID] = len(x0)
		x0 = append(x0, initial.Translation.X, initial.Translation.Y, initial.Heading)
	}
	p.mu.Unlock()
	blocks.numParams = len(x0)

	frozenSubmapPose := make(map[id.SubmapID]geometry.Rigid2d)
	for _, e := range submapEntries {
		if _, ok := blocks.submaps[e.ID]; !ok {
			frozenSubmapPose[e.ID] = e.Data
		}
	}
	frozenNodePose := make(map[id.NodeID]geometry.Rigid2d)
	for _, e := range nodeEntries {
		if _, ok := blocks.nodes[e.ID]; !ok {
			frozenNodePose[e.ID] = e.Data
		}
	}

	lookupSubmapPose := func(x []float64, submapID id.SubmapID) geometry.Rigid2d {
		if offset, ok := blocks.submaps[submapID]; ok {
			return vec3ToPose(x, offset)
		}
		return frozenSubmapPose[submapID]
	}
	lookupNodePose := func(x []float64, nodeID id.NodeID) geometry.Rigid2d {
		if offset, ok := blocks.nodes[nodeID]; ok {
			return vec3ToPose(x, offset)
		}
		return frozenNodePose[nodeID]
	}

	constraintResidual := func(c mapping.Constraint, x []float64) float64 {
		submapPose := lookupSubmapPose(x, c.SubmapID)
		nodePose := lookupNodePose(x, c.NodeID)
		predicted := submapPose.Inverse().Compose(nodePose)

		dx := predicted.Translation.X - c.Pose.RelativePose.Translation.X
		dy := predicted.Translation.Y - c.Pose.RelativePose.Translation.Y
		dtheta := geometry.NormalizeAngle(predicted.Heading - c.Pose.RelativePose.Heading)

		return c.Pose.TranslationWeight*(dx*dx+dy*dy) + c.Pose.RotationWeight*dtheta*dtheta
	}

	// sumConstraintResiduals fans the constraint list out across a bounded
	// number of shards with errgroup, each accumulating its own partial sum
	// over a disjoint slice so no synchronization is needed beyond the
	// final reduction; x is read-only for the duration of one objective
	// evaluation, so concurrent shards reading it is safe.
	sumConstraintResiduals := func(x []float64) float64 {
		if len(constraints) < minConstraintsPerShard {
			total := 0.0
			for _, c := range constraints {
				total += constraintResidual(c, x)
			}
			return total
		}

		numShards := constraintResidualShards
		shardSize := (len(constraints) + numShards - 1) / numShards
		partial := make([]float64, numShards)

		grp, _ := errgroup.WithContext(context.Background())
		for shard := 0; shard < numShards; shard++ {
			shard := shard
			start := shard * shardSize
			if start >= len(constraints) {
				continue
			}
			end := start + shardSize
			if end > len(constraints) {
				end = len(constraints)
			}
			grp.Go(func() error {
				sum := 0.0
				for _, c := range constraints[start:end] {
					sum += constraintResidual(c, x)
				}
				partial[shard] = sum
				return nil
			})
		}
		_ = grp.Wait()

		total := 0.0
		for _, s := range partial {
			total += s
		}
		return total
	}

	objective := func(x []float64) float64 {
		total := sumConstraintResiduals(x)
		for landmarkID, node := range landmarkNodes {
			landmarkOffset, ok := blocks.landmarks[landmarkID]
			if !ok {
				continue
			}
			landmarkPose := vec3ToPose(x, landmarkOffset)
			for _, obs := range node.Observations {
				nodeID, ok := nearestNodeInTrajectory(nodeSpecs, obs.TrajectoryID, obs.Time)
				if !ok {
					continue
				}
				nodePose := lookupNodePose(x, nodeID)
				predictedLandmark := nodePose.Compose(obs.LandmarkToTracking.Project2D())

				dx := predictedLandmark.Translation.X - landmarkPose.Translation.X
				dy := predictedLandmark.Translation.Y - landmarkPose.Translation.Y
				dtheta := geometry.NormalizeAngle(predictedLandmark.Heading - landmarkPose.Heading)

				total += obs.TranslationWeight*(dx*dx+dy*dy) + obs.RotationWeight*dtheta*dtheta
			}
		}
		return total
	}

	reporter.Report("optimization.num_constraints", float64(len(constraints)))
	reporter.Report("optimization.num_params", float64(blocks.numParams))

	var solveErr error
	if blocks.numParams > 0 {
		problem := optimize.Problem{Func: objective}
		settings := &optimize.Settings{}
		if maxIterations > 0 {
			settings.MajorIterations = maxIterations
		}
		result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if err != nil {
			solveErr = errors.Wrap(err, "pose graph optimization")
		}
		if result != nil {
			reporter.Report("optimization.major_iterations", float64(result.MajorIterations))
			reporter.Report("optimization.residual", result.F)
		}
		if result != nil && result.X != nil {
			p.mu.Lock()
			for submapID, offset := range blocks.submaps {
				p.submapPoses.Set(submapID, vec3ToPose(result.X, offset))
			}
			for nodeID, offset := range blocks.nodes {
				p.nodePoses.Set(nodeID, vec3ToPose(result.X, offset))
			}
			for landmarkID, offset := range blocks.landmarks {
				p.landmarkPoses[landmarkID] = vec3ToPose(result.X, offset)
			}
			p.mu.Unlock()
		}
	}
	return solveErr
}

// nearestNodeInTrajectory returns the id of the node in trajectoryID whose
// timestamp is closest to t, approximating cartographer's interpolated
// tracking-frame lookup for a landmark observation.
func nearestNodeInTrajectory(
	specs map[id.NodeID]mapping.NodeSpec,
	trajectoryID id.TrajectoryID,
	t time.Time,
) (id.NodeID, bool) {
	var best id.NodeID
	var bestDelta time.Duration
	found := false
	for nodeID, spec := range specs {
		if nodeID.TrajectoryID != trajectoryID {
			continue
		}
		delta := spec.Time.Sub(t)
		if delta < 0 {
			delta = -delta
		}
		if !found || delta < bestDelta {
			best, bestDelta, found = nodeID, delta, true
		}
	}
	return best, found
}
