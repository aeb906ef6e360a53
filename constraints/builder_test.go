package constraints_test

import (
	"sync"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/constraints"
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/internal/workerpool"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/submap/fakesubmap"
)

func TestBuilderBarrierFiresOnceWithAllAcceptedConstraints(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	factory := constraints.NewGridScanMatcher(0) // expectedCellCount<=0 => always scores 1.0
	b := constraints.New(pool, factory, constraints.Options{
		SamplingRatio:              1.0,
		MinScore:                   0,
		GlobalLocalizationMinScore: 0,
	})

	s := fakesubmap.New(geometry.Identity3D(), 0.05)
	nodeID := id.NodeID{TrajectoryID: 0, NodeIndex: 0}
	submapID := id.SubmapID{TrajectoryID: 0, SubmapIndex: 0}

	var (
		mu       sync.Mutex
		fired    int
		received []mapping.Constraint
	)
	done := make(chan struct{})

	b.MaybeAddConstraint(submapID, s, nodeID, mapping.TrajectoryNodeData{}, geometry.Identity2D())
	b.MaybeAddConstraint(submapID, s, nodeID, mapping.TrajectoryNodeData{}, geometry.Identity2D())
	b.MaybeAddGlobalConstraint(submapID, s, nodeID, mapping.TrajectoryNodeData{})
	b.NotifyEndOfNode()

	b.WhenDone(func(cs []mapping.Constraint) {
		mu.Lock()
		fired++
		received = cs
		mu.Unlock()
		close(done)
	})

	<-done

	mu.Lock()
	defer mu.Unlock()
	test.That(t, fired, test.ShouldEqual, 1)
	test.That(t, len(received), test.ShouldEqual, 3)
	test.That(t, b.GetNumFinishedNodes(), test.ShouldEqual, 1)
}

func TestBuilderDropsLowScoringMatches(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Close()

	// expectedCellCount much larger than actual occupied cells => score ~0.
	factory := constraints.NewGridScanMatcher(1000)
	b := constraints.New(pool, factory, constraints.Options{
		SamplingRatio: 1.0,
		MinScore:      0.5,
	})

	s := fakesubmap.New(geometry.Identity3D(), 0.05)
	s.InsertRangeData([][2]int{{0, 0}})
	nodeID := id.NodeID{TrajectoryID: 0, NodeIndex: 0}
	submapID := id.SubmapID{TrajectoryID: 0, SubmapIndex: 0}

	done := make(chan []mapping.Constraint, 1)
	b.MaybeAddConstraint(submapID, s, nodeID, mapping.TrajectoryNodeData{}, geometry.Identity2D())
	b.NotifyEndOfNode()
	b.WhenDone(func(cs []mapping.Constraint) { done <- cs })

	result := <-done
	test.That(t, len(result), test.ShouldEqual, 0)
}
