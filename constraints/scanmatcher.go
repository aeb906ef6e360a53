package constraints

import (
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/submap"
)

// ScanMatcher is the opaque per-submap correlative matcher the builder
// drives. Geometric correctness of the match itself is out of scope here
// (the front-end owns scan matching); this interface only fixes the shape a
// job needs: local search around an initial estimate, or an unconstrained
// global search.
type ScanMatcher interface {
	// MatchLocal searches a small window around initialPose and returns the
	// best relative pose found plus its score in [0, 1].
	MatchLocal(s submap.Submap, node mapping.TrajectoryNodeData, initialPose geometry.Rigid2d) (geometry.Rigid2d, float64)
	// MatchGlobal searches the whole submap with no initial estimate.
	MatchGlobal(s submap.Submap, node mapping.TrajectoryNodeData) (geometry.Rigid2d, float64)
}

// Factory builds a ScanMatcher for a submap, invoked once per submap id and
// memoized by the builder.
type Factory func(submap.Submap) ScanMatcher

// gridScanMatcher is a deterministic reference ScanMatcher: it reports a
// perfect match at the initial estimate (or identity, for global matches),
// scored by how densely occupied the target submap's grid is relative to
// expectedCellCount. It makes no claim to geometric correctness; it exists
// so tests and the CLI can exercise the builder's sampling, thresholding and
// barrier logic without a real correlative matcher.
type gridScanMatcher struct {
	expectedCellCount int
}

// NewGridScanMatcher returns a Factory producing gridScanMatchers scored
// against expectedCellCount occupied cells.
func NewGridScanMatcher(expectedCellCount int) Factory {
	return func(submap.Submap) ScanMatcher {
		return &gridScanMatcher{expectedCellCount: expectedCellCount}
	}
}

func (m *gridScanMatcher) score(s submap.Submap) float64 {
	if m.expectedCellCount <= 0 {
		return 1
	}
	occupied := 0
	s.Grid().Iterate(func(x, y int, occ bool) bool {
		if occ {
			occupied++
		}
		return true
	})
	score := float64(occupied) / float64(m.expectedCellCount)
	if score > 1 {
		score = 1
	}
	return score
}

func (m *gridScanMatcher) MatchLocal(s submap.Submap, _ mapping.TrajectoryNodeData, initialPose geometry.Rigid2d) (geometry.Rigid2d, float64) {
	return initialPose, m.score(s)
}

func (m *gridScanMatcher) MatchGlobal(s submap.Submap, _ mapping.TrajectoryNodeData) (geometry.Rigid2d, float64) {
	return geometry.Identity2D(), m.score(s)
}
