package id_test

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/id"
)

func newSubmapID(t id.TrajectoryID, idx int) id.SubmapID {
	return id.SubmapID{TrajectoryID: t, SubmapIndex: idx}
}

func TestAppendIsMonotonePerTrajectory(t *testing.T) {
	m := id.NewMapById[id.SubmapID, string](newSubmapID)
	a0 := m.Append(0, "a0")
	a1 := m.Append(0, "a1")
	b0 := m.Append(1, "b0")

	test.That(t, a0, test.ShouldResemble, id.SubmapID{TrajectoryID: 0, SubmapIndex: 0})
	test.That(t, a1, test.ShouldResemble, id.SubmapID{TrajectoryID: 0, SubmapIndex: 1})
	test.That(t, b0, test.ShouldResemble, id.SubmapID{TrajectoryID: 1, SubmapIndex: 0})
	test.That(t, m.SizeOfTrajectoryOrZero(0), test.ShouldEqual, 2)
	test.That(t, m.SizeOfTrajectoryOrZero(1), test.ShouldEqual, 1)
	test.That(t, m.SizeOfTrajectoryOrZero(2), test.ShouldEqual, 0)
}

func TestInsertRejectsDuplicateAndAdvancesAppend(t *testing.T) {
	m := id.NewMapById[id.SubmapID, string](newSubmapID)
	test.That(t, m.Insert(newSubmapID(0, 5), "five"), test.ShouldBeTrue)
	test.That(t, m.Insert(newSubmapID(0, 5), "again"), test.ShouldBeFalse)

	next := m.Append(0, "six")
	test.That(t, next, test.ShouldResemble, newSubmapID(0, 6))
}

func TestTrimNeverReusesIndex(t *testing.T) {
	m := id.NewMapById[id.SubmapID, string](newSubmapID)
	id0 := m.Append(0, "zero")
	m.Append(0, "one")

	test.That(t, m.Trim(id0), test.ShouldBeTrue)
	test.That(t, m.Contains(id0), test.ShouldBeFalse)
	test.That(t, m.Trim(id0), test.ShouldBeFalse)

	next := m.Append(0, "two")
	test.That(t, next, test.ShouldResemble, newSubmapID(0, 2))
}

func TestRangeOrdersByTrajectoryThenIndex(t *testing.T) {
	m := id.NewMapById[id.SubmapID, string](newSubmapID)
	m.Append(1, "b0")
	m.Append(0, "a0")
	m.Append(0, "a1")

	entries := m.Range()
	test.That(t, len(entries), test.ShouldEqual, 3)
	test.That(t, entries[0].ID, test.ShouldResemble, newSubmapID(0, 0))
	test.That(t, entries[1].ID, test.ShouldResemble, newSubmapID(0, 1))
	test.That(t, entries[2].ID, test.ShouldResemble, newSubmapID(1, 0))
}

func TestLowerBoundIndex(t *testing.T) {
	m := id.NewMapById[id.SubmapID, int](newSubmapID)
	m.Append(0, 10)
	m.Append(0, 20)
	m.Append(0, 30)

	isBefore := func(target int) func(int) bool {
		return func(v int) bool { return v < target }
	}

	test.That(t, m.LowerBoundIndex(0, isBefore(5)), test.ShouldEqual, 0)
	test.That(t, m.LowerBoundIndex(0, isBefore(20)), test.ShouldEqual, 1)
	test.That(t, m.LowerBoundIndex(0, isBefore(99)), test.ShouldEqual, 3)
}
