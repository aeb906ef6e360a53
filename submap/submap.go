// Package submap defines the narrow, front-end-owned interface the pose
// graph depends on. The pose graph never constructs or mutates a Submap: it
// only reads LocalPose, NumRangeData, Finished and Grid, the same "opaque to
// core" boundary cartographer draws between mapping::Submap2D and its
// internal PoseGraph2D.
package submap

import "go.viam.com/slam-backend/geometry"

// Grid is the occupancy representation backing a Submap, exposed only so the
// trimmer can rasterize cells into its global freshness grid. Cell
// coordinates are submap-local grid indices; Resolution is the edge length
// of one cell in meters, so a cell (x, y) sits at local-frame point
// (x*Resolution(), y*Resolution()) before LocalPose is applied.
type Grid interface {
	Resolution() float64
	// Iterate calls visit for every occupied cell. Stop early if visit
	// returns false.
	Iterate(visit func(x, y int, occupied bool) bool)
}

// Submap is the read-only view of a front-end-owned submap the pose graph
// and trimmer operate on. Implementations are shared-immutable once
// Finished() returns true: until then only the owning front-end mutates the
// underlying grid, and the pose graph only ever reads through this
// interface.
type Submap interface {
	// LocalPose is the submap's pose in its trajectory's local (unoptimized)
	// frame.
	LocalPose() geometry.Rigid3d
	// NumRangeData is the number of range-data scans folded into this
	// submap so far.
	NumRangeData() int
	// Finished reports whether the front-end has stopped inserting range
	// data into this submap.
	Finished() bool
	// Grid exposes the occupancy representation for trimmer rasterization.
	Grid() Grid
}
