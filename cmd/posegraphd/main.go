// Package main runs a standalone pose graph against a fake front-end,
// driven entirely off a config file, the way the rdk's own standalone
// command-line tools exercise a single subsystem without a full robot
// behind it.
package main

import (
	"context"
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/spatial/r3"

	"go.viam.com/slam-backend/config"
	"go.viam.com/slam-backend/constraints"
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/internal/workerpool"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/metrics"
	"go.viam.com/slam-backend/optimization"
	"go.viam.com/slam-backend/posegraph"
	"go.viam.com/slam-backend/submap"
	"go.viam.com/slam-backend/submap/fakesubmap"
	"go.viam.com/slam-backend/trimmer"
)

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

var logger = golog.NewDevelopmentLogger("posegraphd")

// Arguments for the command.
type Arguments struct {
	ConfigFile     string `flag:"0,usage=pose graph config file (yaml/json), defaults omitted"`
	NumNodes       int    `flag:"num-nodes,default=20,usage=number of fake trajectory nodes to replay through the graph"`
	NodesPerSubmap int    `flag:"nodes-per-submap,default=5,usage=how many nodes finish a fake submap"`
	MetricsOutFile string `flag:"metrics-out,usage=write a final metrics snapshot to this file on exit"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.NumNodes <= 0 {
		argsParsed.NumNodes = 20
	}
	if argsParsed.NodesPerSubmap <= 0 {
		argsParsed.NodesPerSubmap = 5
	}

	opts := config.Default()
	if argsParsed.ConfigFile != "" {
		opts, err = config.Load(argsParsed.ConfigFile)
		if err != nil {
			return err
		}
	}

	runID := uuid.New()
	logger.Infof("starting pose graph run %s", runID)

	reporter := metrics.NewInProcessReporter()
	if argsParsed.MetricsOutFile != "" {
		defer func() {
			f, ferr := os.Create(argsParsed.MetricsOutFile)
			if ferr != nil {
				err = multierr.Combine(err, ferr)
				return
			}
			defer f.Close()
			err = multierr.Combine(err, reporter.WriteSnapshot(f))
		}()
	}

	pool := workerpool.New(4)
	defer pool.Close()

	factory := constraints.NewGridScanMatcher(1000)
	builder := constraints.New(pool, factory, opts.BuilderOptions())
	builder.SetReporter(reporter)

	problem := optimization.New()
	problem.SetReporter(reporter)

	graph := posegraph.New(logger, opts.PoseGraphOptions(), builder, problem)
	graph.AddTrimmer(trimmer.NewOverlappingSubmapsTrimmer(
		opts.Trimmer.FreshSubmapsCount, opts.Trimmer.MinCoveredCellsCount, opts.Trimmer.CellSizeMeters))

	const trajectoryID id.TrajectoryID = 0
	replayFakeTrajectory(graph, trajectoryID, argsParsed.NumNodes, argsParsed.NodesPerSubmap)
	graph.FinishTrajectory(trajectoryID)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if waitErr := graph.WaitForAllComputations(waitCtx); waitErr != nil {
		logger.Warnf("computations did not settle before shutdown: %v", waitErr)
	}

	logger.Infof("pose graph run %s holds %d constraints across %d submaps",
		runID, graph.NumConstraints(), graph.GetAllSubmapPoses().Len())

	utils.ContextMainReadyFunc(ctx)()
	<-ctx.Done()
	return nil
}

// replayFakeTrajectory feeds a straight-line trajectory of nodesPerSubmap
// nodes per submap through graph, standing in for a front-end driving the
// pose graph from real range data.
func replayFakeTrajectory(graph *posegraph.PoseGraph, trajectoryID id.TrajectoryID, numNodes, nodesPerSubmap int) {
	start := time.Now()
	var current *fakesubmap.Submap
	for i := 0; i < numNodes; i++ {
		if i%nodesPerSubmap == 0 {
			if current != nil {
				current.Finish()
			}
			current = fakesubmap.New(geometry.Identity3D(), 0.05)
		}

		localPose := geometry.NewRigid3D(r3.Vec{X: float64(i) * 0.1}, geometry.Identity3D().Rotation)
		current.InsertRangeData([][2]int{{i, 0}, {i, 1}})

		nodeData := mapping.TrajectoryNodeData{
			Time:               start.Add(time.Duration(i) * 100 * time.Millisecond),
			LocalPose:          localPose,
			GravityAlignment:   geometry.Identity3D(),
			NumRangeDataPoints: 2,
		}
		graph.AddNode(nodeData, trajectoryID, []submap.Submap{current})
	}
	if current != nil {
		current.Finish()
	}
}
