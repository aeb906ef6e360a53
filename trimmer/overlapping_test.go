package trimmer_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/submap/fakesubmap"
	"go.viam.com/slam-backend/trimmer"
)

type fakeTrimmable struct {
	constraints     []mapping.Constraint
	submapData      *id.MapById[id.SubmapID, trimmer.SubmapData]
	trajectoryNodes *id.MapById[id.NodeID, mapping.TrajectoryNode]
	trimmed         []id.SubmapID
}

func (f *fakeTrimmable) GetConstraints() []mapping.Constraint { return f.constraints }
func (f *fakeTrimmable) GetAllSubmapData() *id.MapById[id.SubmapID, trimmer.SubmapData] {
	return f.submapData
}
func (f *fakeTrimmable) GetTrajectoryNodes() *id.MapById[id.NodeID, mapping.TrajectoryNode] {
	return f.trajectoryNodes
}
func (f *fakeTrimmable) MarkSubmapAsTrimmed(s id.SubmapID) {
	f.trimmed = append(f.trimmed, s)
}

func newSubmapID(t id.TrajectoryID, i int) id.SubmapID { return id.SubmapID{TrajectoryID: t, SubmapIndex: i} }
func newNodeID(t id.TrajectoryID, i int) id.NodeID     { return id.NodeID{TrajectoryID: t, NodeIndex: i} }

func TestEmptyPoseGraphTrimYieldsEmptyTrimSet(t *testing.T) {
	tr := trimmer.NewOverlappingSubmapsTrimmer(1, 0, 1.0)
	f := &fakeTrimmable{
		submapData:      id.NewMapById[id.SubmapID, trimmer.SubmapData](newSubmapID),
		trajectoryNodes: id.NewMapById[id.NodeID, mapping.TrajectoryNode](newNodeID),
	}
	tr.Trim(f)
	test.That(t, len(f.trimmed), test.ShouldEqual, 0)
	test.That(t, tr.IsFinished(), test.ShouldBeTrue)
}

func TestFullyOverlappingSubmapsTrimsTheStaleOne(t *testing.T) {
	submapData := id.NewMapById[id.SubmapID, trimmer.SubmapData](newSubmapID)
	trajectoryNodes := id.NewMapById[id.NodeID, mapping.TrajectoryNode](newNodeID)

	s0 := fakesubmap.New(geometry.Identity3D(), 1.0)
	s0.InsertRangeData([][2]int{{0, 0}})
	s1 := fakesubmap.New(geometry.Identity3D(), 1.0)
	s1.InsertRangeData([][2]int{{0, 0}})

	id0 := submapData.Append(0, trimmer.SubmapData{Submap: s0, GlobalPose: geometry.Identity3D()})
	id1 := submapData.Append(0, trimmer.SubmapData{Submap: s1, GlobalPose: geometry.Identity3D()})

	node0 := trajectoryNodes.Append(0, mapping.TrajectoryNode{
		ConstantData: mapping.TrajectoryNodeData{Time: time.Unix(100, 0)},
	})
	node1 := trajectoryNodes.Append(0, mapping.TrajectoryNode{
		ConstantData: mapping.TrajectoryNodeData{Time: time.Unix(200, 0)},
	})

	constraints := []mapping.Constraint{
		{SubmapID: id0, NodeID: node0, Tag: mapping.IntraSubmap},
		{SubmapID: id1, NodeID: node1, Tag: mapping.IntraSubmap},
	}

	tr := trimmer.NewOverlappingSubmapsTrimmer(1, 0, 1.0)
	f := &fakeTrimmable{constraints: constraints, submapData: submapData, trajectoryNodes: trajectoryNodes}
	tr.Trim(f)

	test.That(t, len(f.trimmed), test.ShouldEqual, 1)
	test.That(t, f.trimmed[0], test.ShouldResemble, id0)
}

func TestOverlappingTrimmerIsANoOpOnceFinished(t *testing.T) {
	tr := trimmer.NewOverlappingSubmapsTrimmer(1, 0, 1.0)
	f := &fakeTrimmable{
		submapData:      id.NewMapById[id.SubmapID, trimmer.SubmapData](newSubmapID),
		trajectoryNodes: id.NewMapById[id.NodeID, mapping.TrajectoryNode](newNodeID),
	}
	tr.Trim(f)
	test.That(t, tr.IsFinished(), test.ShouldBeTrue)

	f.trimmed = nil
	tr.Trim(f)
	test.That(t, len(f.trimmed), test.ShouldEqual, 0)
}
