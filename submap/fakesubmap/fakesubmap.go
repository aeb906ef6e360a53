// Package fakesubmap provides a deterministic, in-memory submap.Submap used
// by tests and the standalone CLI in place of a real range-data front-end.
// The occupancy grid is a mutex-guarded sparse map of cell indices, the same
// shape as the rdk's SquareArea/mutableSquareArea split between a locked
// owner and an unlocked mutator callback.
package fakesubmap

import (
	"sync"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/submap"
)

// Submap is a fake, in-memory occupancy grid submap.
type Submap struct {
	mu           sync.Mutex
	localPose    geometry.Rigid3d
	resolution   float64
	numRangeData int
	finished     bool
	cells        map[cellKey]bool
}

type cellKey struct{ x, y int }

// New returns an empty submap at localPose with the given grid resolution
// (meters per cell).
func New(localPose geometry.Rigid3d, resolution float64) *Submap {
	return &Submap{
		localPose:  localPose,
		resolution: resolution,
		cells:      make(map[cellKey]bool),
	}
}

// LocalPose implements submap.Submap.
func (s *Submap) LocalPose() geometry.Rigid3d {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPose
}

// NumRangeData implements submap.Submap.
func (s *Submap) NumRangeData() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numRangeData
}

// Finished implements submap.Submap.
func (s *Submap) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Grid implements submap.Submap.
func (s *Submap) Grid() submap.Grid {
	return (*grid)(s)
}

// InsertRangeData marks the given submap-local cell indices occupied and
// increments the range-data counter. It panics if the submap is already
// finished, matching the immutable-once-finished invariant the pose graph
// relies on.
func (s *Submap) InsertRangeData(occupiedCells [][2]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		panic("fakesubmap: InsertRangeData on a finished submap")
	}
	for _, c := range occupiedCells {
		s.cells[cellKey{c[0], c[1]}] = true
	}
	s.numRangeData++
}

// Finish marks the submap immutable.
func (s *Submap) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

type grid Submap

func (g *grid) Resolution() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolution
}

func (g *grid) Iterate(visit func(x, y int, occupied bool) bool) {
	g.mu.Lock()
	cells := make(map[cellKey]bool, len(g.cells))
	for k, v := range g.cells {
		cells[k] = v
	}
	g.mu.Unlock()

	for k, v := range cells {
		if !visit(k.x, k.y, v) {
			return
		}
	}
}
