package metrics_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/metrics"
)

func TestInProcessReporterLatestReflectsLastReport(t *testing.T) {
	r := metrics.NewInProcessReporter()
	_, ok := r.Latest("optimization.residual")
	test.That(t, ok, test.ShouldBeFalse)

	r.Report("optimization.residual", 1.5)
	r.Report("optimization.residual", 2.5)

	v, ok := r.Latest("optimization.residual")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 2.5)
}

func TestInProcessReporterNamesSorted(t *testing.T) {
	r := metrics.NewInProcessReporter()
	r.Report("b.metric", 1)
	r.Report("a.metric", 2)
	r.Report("c.metric", 3)

	test.That(t, r.Names(), test.ShouldResemble, []string{"a.metric", "b.metric", "c.metric"})
}

func TestInProcessReporterSnapshotIsACopy(t *testing.T) {
	r := metrics.NewInProcessReporter()
	r.Report("x", 1)

	snap := r.Snapshot()
	test.That(t, snap.Values["x"], test.ShouldEqual, 1.0)

	r.Report("x", 99)
	test.That(t, snap.Values["x"], test.ShouldEqual, 1.0)
}

func TestInProcessReporterWriteSnapshotEmitsJSON(t *testing.T) {
	r := metrics.NewInProcessReporter()
	r.Report("constraints.num_finished_nodes", 4)

	var buf bytes.Buffer
	test.That(t, r.WriteSnapshot(&buf), test.ShouldBeNil)

	var snap metrics.Snapshot
	test.That(t, json.Unmarshal(buf.Bytes(), &snap), test.ShouldBeNil)
	test.That(t, snap.Values["constraints.num_finished_nodes"], test.ShouldEqual, 4.0)
}

func TestNopReporterDiscardsReadings(t *testing.T) {
	var r metrics.Reporter = metrics.NopReporter{}
	r.Report("anything", 1)
}
