// Package connectivity tracks which trajectories have been tied together by
// an inter-submap constraint, and when that last happened, via a disjoint-set
// forest over trajectory ids.
package connectivity

import (
	"time"

	"go.viam.com/slam-backend/id"
)

type pairKey struct {
	min, max id.TrajectoryID
}

func newPairKey(a, b id.TrajectoryID) pairKey {
	if a <= b {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

// State is a union-find over trajectory ids with an auxiliary map of
// last-connection time per pair. It is not safe for concurrent use; callers
// (the pose graph) must hold their own lock around it.
type State struct {
	parent             map[id.TrajectoryID]id.TrajectoryID
	rank               map[id.TrajectoryID]int
	lastConnectionTime map[pairKey]time.Time
}

// NewState returns an empty connectivity state.
func NewState() *State {
	return &State{
		parent:             make(map[id.TrajectoryID]id.TrajectoryID),
		rank:               make(map[id.TrajectoryID]int),
		lastConnectionTime: make(map[pairKey]time.Time),
	}
}

// Add registers trajectoryID as its own singleton component if it isn't
// already known. Idempotent.
func (s *State) Add(trajectoryID id.TrajectoryID) {
	if _, ok := s.parent[trajectoryID]; ok {
		return
	}
	s.parent[trajectoryID] = trajectoryID
	s.rank[trajectoryID] = 0
}

func (s *State) find(t id.TrajectoryID) id.TrajectoryID {
	s.Add(t)
	root := t
	for s.parent[root] != root {
		root = s.parent[root]
	}
	// path compression
	for s.parent[t] != root {
		next := s.parent[t]
		s.parent[t] = root
		t = next
	}
	return root
}

func (s *State) union(a, b id.TrajectoryID) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	if s.rank[ra] < s.rank[rb] {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
	if s.rank[ra] == s.rank[rb] {
		s.rank[ra]++
	}
}

// Connect unions the components containing a and b and advances their
// pairwise last-connection time to max(existing, t).
func (s *State) Connect(a, b id.TrajectoryID, t time.Time) {
	s.Add(a)
	s.Add(b)
	s.union(a, b)
	key := newPairKey(a, b)
	if existing, ok := s.lastConnectionTime[key]; !ok || t.After(existing) {
		s.lastConnectionTime[key] = t
	}
}

// LastConnectionTime returns the most recent time a and b were connected. It
// returns the zero Time for distinct, never-connected trajectories, and
// time.Unix(1<<62, 0) (a sentinel far beyond any real timestamp) when a == b,
// matching cartographer's "infinity for self" convention so that same-
// trajectory matches are always treated as within the recency window.
func (s *State) LastConnectionTime(a, b id.TrajectoryID) time.Time {
	if a == b {
		return time.Unix(1<<62, 0)
	}
	return s.lastConnectionTime[newPairKey(a, b)]
}

// Components returns the current partition of all known trajectory ids into
// connected components, each sorted ascending, components sorted by their
// smallest member.
func (s *State) Components() [][]id.TrajectoryID {
	byRoot := make(map[id.TrajectoryID][]id.TrajectoryID)
	for t := range s.parent {
		root := s.find(t)
		byRoot[root] = append(byRoot[root], t)
	}
	out := make([][]id.TrajectoryID, 0, len(byRoot))
	for _, members := range byRoot {
		sortTrajectoryIDs(members)
		out = append(out, members)
	}
	sortComponents(out)
	return out
}

func sortTrajectoryIDs(ids []id.TrajectoryID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func sortComponents(components [][]id.TrajectoryID) {
	for i := 1; i < len(components); i++ {
		for j := i; j > 0 && components[j-1][0] > components[j][0]; j-- {
			components[j-1], components[j] = components[j], components[j-1]
		}
	}
}
