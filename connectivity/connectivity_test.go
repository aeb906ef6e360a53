package connectivity_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/slam-backend/connectivity"
	"go.viam.com/slam-backend/id"
)

func TestUnconnectedTrajectoriesHaveZeroLastConnectionTime(t *testing.T) {
	s := connectivity.NewState()
	s.Add(0)
	s.Add(1)

	test.That(t, s.LastConnectionTime(0, 1).IsZero(), test.ShouldBeTrue)
}

func TestSelfConnectionTimeIsAlwaysFarInTheFuture(t *testing.T) {
	s := connectivity.NewState()
	s.Add(0)

	test.That(t, s.LastConnectionTime(0, 0).After(time.Now().AddDate(1000, 0, 0)), test.ShouldBeTrue)
}

func TestConnectUnionsAndTracksMostRecentTime(t *testing.T) {
	s := connectivity.NewState()
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)

	s.Connect(0, 1, late)
	s.Connect(0, 1, early) // older timestamp must not regress the max

	test.That(t, s.LastConnectionTime(0, 1), test.ShouldEqual, late)
	test.That(t, s.LastConnectionTime(1, 0), test.ShouldEqual, late)

	components := s.Components()
	test.That(t, len(components), test.ShouldEqual, 1)
	test.That(t, components[0], test.ShouldResemble, []id.TrajectoryID{0, 1})
}

func TestComponentsSeparatesUnconnectedTrajectories(t *testing.T) {
	s := connectivity.NewState()
	s.Add(0)
	s.Add(1)
	s.Connect(2, 3, time.Unix(1, 0))

	components := s.Components()
	test.That(t, len(components), test.ShouldEqual, 3)
	test.That(t, components[0], test.ShouldResemble, []id.TrajectoryID{0})
	test.That(t, components[1], test.ShouldResemble, []id.TrajectoryID{1})
	test.That(t, components[2], test.ShouldResemble, []id.TrajectoryID{2, 3})
}
