package fakesubmap_test

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/submap/fakesubmap"
)

func TestInsertRangeDataIncrementsCountAndMarksCells(t *testing.T) {
	s := fakesubmap.New(geometry.Identity3D(), 0.05)
	s.InsertRangeData([][2]int{{0, 0}, {1, 0}})
	test.That(t, s.NumRangeData(), test.ShouldEqual, 1)

	seen := map[[2]int]bool{}
	s.Grid().Iterate(func(x, y int, occupied bool) bool {
		seen[[2]int{x, y}] = occupied
		return true
	})
	test.That(t, len(seen), test.ShouldEqual, 2)
	test.That(t, seen[[2]int{0, 0}], test.ShouldBeTrue)
}

func TestFinishMakesInsertPanic(t *testing.T) {
	s := fakesubmap.New(geometry.Identity3D(), 0.05)
	s.Finish()
	test.That(t, s.Finished(), test.ShouldBeTrue)

	defer func() {
		r := recover()
		test.That(t, r, test.ShouldNotBeNil)
	}()
	s.InsertRangeData([][2]int{{2, 2}})
}
