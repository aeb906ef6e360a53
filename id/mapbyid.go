package id

import "sort"

// Entry pairs an id with its stored value, as returned by range-like
// accessors on MapById.
type Entry[K ID, V any] struct {
	ID   K
	Data V
}

// MapById stores values of type V keyed by an ordered id type K (SubmapID or
// NodeID), grouped by trajectory and kept in ascending index order within
// each trajectory. It mirrors cartographer's MapById<IdType, T>: entries are
// never reused after Trim, iteration within a trajectory is strictly
// ascending by index, and iteration across trajectories is ordered by
// trajectory id.
//
// MapById is not safe for concurrent use; callers (the pose graph) must hold
// their own lock around it.
type MapById[K ID, V any] struct {
	newID        func(TrajectoryID, int) K
	nextIndex    map[TrajectoryID]int
	trajectories map[TrajectoryID][]Entry[K, V]
	trajOrder    []TrajectoryID // sorted trajectory ids currently present
}

// NewMapById constructs an empty MapById. newID builds a K from a trajectory
// id and an index; it is needed because K's concrete shape (SubmapID vs
// NodeID) isn't otherwise constructible generically.
func NewMapById[K ID, V any](newID func(TrajectoryID, int) K) *MapById[K, V] {
	return &MapById[K, V]{
		newID:        newID,
		nextIndex:    make(map[TrajectoryID]int),
		trajectories: make(map[TrajectoryID][]Entry[K, V]),
	}
}

func (m *MapById[K, V]) addTrajectoryIfNeeded(t TrajectoryID) {
	if _, ok := m.trajectories[t]; ok {
		return
	}
	m.trajectories[t] = nil
	pos := sort.Search(len(m.trajOrder), func(i int) bool { return m.trajOrder[i] >= t })
	m.trajOrder = append(m.trajOrder, 0)
	copy(m.trajOrder[pos+1:], m.trajOrder[pos:])
	m.trajOrder[pos] = t
}

// Append inserts value under a freshly minted, monotonically increasing id
// for trajectoryID and returns that id.
func (m *MapById[K, V]) Append(trajectoryID TrajectoryID, value V) K {
	m.addTrajectoryIfNeeded(trajectoryID)
	idx := m.nextIndex[trajectoryID]
	m.nextIndex[trajectoryID] = idx + 1
	newID := m.newID(trajectoryID, idx)
	m.trajectories[trajectoryID] = append(m.trajectories[trajectoryID], Entry[K, V]{newID, value})
	return newID
}

// Insert adds value under the given id, which must not already be present.
// It reports false if the id already exists. Insert also advances the
// trajectory's next-Append index past id's index, so Append never collides
// with an explicitly inserted id (the deserialization path inserts
// arbitrary ids before any Append call on that trajectory).
func (m *MapById[K, V]) Insert(newID K, value V) bool {
	t := newID.Trajectory()
	m.addTrajectoryIfNeeded(t)
	entries := m.trajectories[t]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].ID.Index() >= newID.Index() })
	if pos < len(entries) && entries[pos].ID.Index() == newID.Index() {
		return false
	}
	entries = append(entries, Entry[K, V]{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = Entry[K, V]{newID, value}
	m.trajectories[t] = entries
	if newID.Index() >= m.nextIndex[t] {
		m.nextIndex[t] = newID.Index() + 1
	}
	return true
}

// At returns the value stored under id and whether it was present.
func (m *MapById[K, V]) At(lookup K) (V, bool) {
	entries := m.trajectories[lookup.Trajectory()]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].ID.Index() >= lookup.Index() })
	if pos < len(entries) && entries[pos].ID.Index() == lookup.Index() {
		return entries[pos].Data, true
	}
	var zero V
	return zero, false
}

// Set overwrites the value stored under id, which must already be present.
// It reports false if id was not found.
func (m *MapById[K, V]) Set(lookup K, value V) bool {
	entries := m.trajectories[lookup.Trajectory()]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].ID.Index() >= lookup.Index() })
	if pos < len(entries) && entries[pos].ID.Index() == lookup.Index() {
		entries[pos].Data = value
		return true
	}
	return false
}

// Contains reports whether id is present.
func (m *MapById[K, V]) Contains(lookup K) bool {
	_, ok := m.At(lookup)
	return ok
}

// Trim removes the single entry for id, reporting whether it was present.
// The id's index is never reused by a later Append.
func (m *MapById[K, V]) Trim(lookup K) bool {
	t := lookup.Trajectory()
	entries := m.trajectories[t]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].ID.Index() >= lookup.Index() })
	if pos >= len(entries) || entries[pos].ID.Index() != lookup.Index() {
		return false
	}
	m.trajectories[t] = append(entries[:pos], entries[pos+1:]...)
	return true
}

// Trajectory returns the ordered entries for trajectoryID; the result is
// empty (nil for a trajectory never seen) if it has no entries
// (SizeOfTrajectoryOrZero semantics).
func (m *MapById[K, V]) Trajectory(trajectoryID TrajectoryID) []Entry[K, V] {
	return m.trajectories[trajectoryID]
}

// SizeOfTrajectoryOrZero returns the number of entries for trajectoryID.
func (m *MapById[K, V]) SizeOfTrajectoryOrZero(trajectoryID TrajectoryID) int {
	return len(m.trajectories[trajectoryID])
}

// TrajectoryIDs returns, in ascending order, the ids of every trajectory
// that has ever held an entry, including trajectories whose entries have
// all been trimmed since.
func (m *MapById[K, V]) TrajectoryIDs() []TrajectoryID {
	out := make([]TrajectoryID, len(m.trajOrder))
	copy(out, m.trajOrder)
	return out
}

// LowerBoundIndex returns the index, within trajectoryID's entries, of the
// first entry for which isBefore(value) is false. isBefore must be
// monotonic over entries in index order (true for any prefix, false
// afterwards) — satisfied by "entry's time < target time" given nodes are
// appended in increasing time order. A return value of 0 means "begin"; a
// return value equal to the trajectory's size means "end".
func (m *MapById[K, V]) LowerBoundIndex(trajectoryID TrajectoryID, isBefore func(V) bool) int {
	entries := m.trajectories[trajectoryID]
	return sort.Search(len(entries), func(i int) bool { return !isBefore(entries[i].Data) })
}

// Range returns every entry in the map, ordered first by trajectory id then
// by index — the same order cartographer's MapById iterates in.
func (m *MapById[K, V]) Range() []Entry[K, V] {
	var out []Entry[K, V]
	for _, t := range m.trajOrder {
		out = append(out, m.trajectories[t]...)
	}
	return out
}

// Len returns the total number of entries across all trajectories.
func (m *MapById[K, V]) Len() int {
	n := 0
	for _, entries := range m.trajectories {
		n += len(entries)
	}
	return n
}
