package trimmer

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
)

type cellID struct{ x, y int64 }

type cellEntry struct {
	submapID id.SubmapID
	freshness time.Time
}

// globalGrid buckets submap cell centers, quantized to integer cell
// coordinates, by which submaps touch them and when each submap was last
// refreshed. The quantization offset is a fixed, arbitrary reference point:
// unlike cartographer (which anchors it to the first submap's own grid
// bounds, a detail that only affects cell-id values, never which submaps
// tie for a cell), all that matters is that every submap's cells land in
// the same coordinate system, so the origin serves equally well.
type globalGrid struct {
	cellSize float64
	cells    map[cellID][]cellEntry
}

func newGlobalGrid(cellSize float64) *globalGrid {
	return &globalGrid{cellSize: cellSize, cells: make(map[cellID][]cellEntry)}
}

func (g *globalGrid) addPoint(point r2.Vec, submapID id.SubmapID, freshness time.Time) {
	id := cellID{x: roundToInt64(point.X / g.cellSize), y: roundToInt64(point.Y / g.cellSize)}
	g.cells[id] = append(g.cells[id], cellEntry{submapID: submapID, freshness: freshness})
}

func roundToInt64(v float64) int64 {
	return int64(math.Round(v))
}

// OverlappingSubmapsTrimmer retires submaps that are redundantly covered: for
// every grid cell it keeps only the freshSubmapsCount freshest submaps
// touching it, then retires any submap that ends up under-represented
// (covering fewer than minCoveredCellsCount surviving cells).
type OverlappingSubmapsTrimmer struct {
	freshSubmapsCount    uint16
	minCoveredCellsCount uint16
	cellSize             float64
	finished             bool
}

// NewOverlappingSubmapsTrimmer constructs a trimmer with the given
// parameters. cellSize is the world-frame edge length (meters) used to
// quantize cell centers into the global grid.
func NewOverlappingSubmapsTrimmer(freshSubmapsCount, minCoveredCellsCount uint16, cellSize float64) *OverlappingSubmapsTrimmer {
	return &OverlappingSubmapsTrimmer{
		freshSubmapsCount:    freshSubmapsCount,
		minCoveredCellsCount: minCoveredCellsCount,
		cellSize:             cellSize,
	}
}

// IsFinished reports whether Trim has already run once. The pose graph
// drops trimmers that report true after running them.
func (t *OverlappingSubmapsTrimmer) IsFinished() bool {
	return t.finished
}

// Trim implements Trimmer. Once it has run, every subsequent call is a
// no-op: the pose graph is expected to drop a trimmer once IsFinished
// reports true, but Trim stays idempotent regardless.
func (t *OverlappingSubmapsTrimmer) Trim(pose Trimmable) {
	if t.finished {
		return
	}
	constraints := pose.GetConstraints()
	submapData := pose.GetAllSubmapData()
	trajectoryNodes := pose.GetTrajectoryNodes()

	freshness := computeSubmapFreshness(submapData, trajectoryNodes, constraints)
	grid := newGlobalGrid(t.cellSize)
	allSubmapIDs := addSubmapsToGlobalGrid(freshness, submapData, grid)

	toTrim := findSubmapIDsToTrim(grid, allSubmapIDs, t.freshSubmapsCount, t.minCoveredCellsCount)
	for _, submapID := range toTrim {
		pose.MarkSubmapAsTrimmed(submapID)
	}
	t.finished = true
}

// computeSubmapFreshness uses intra-submap constraints and node timestamps
// to find the time of the last range-data insertion into each submap: the
// timestamp of the highest-index node tied to it.
func computeSubmapFreshness(
	submapData *id.MapById[id.SubmapID, SubmapData],
	trajectoryNodes *id.MapById[id.NodeID, mapping.TrajectoryNode],
	constraints []mapping.Constraint,
) map[id.SubmapID]time.Time {
	latestNode := make(map[id.SubmapID]id.NodeID)
	for _, c := range constraints {
		if c.Tag != mapping.IntraSubmap {
			continue
		}
		existing, ok := latestNode[c.SubmapID]
		if !ok || existing.Less(c.NodeID) {
			latestNode[c.SubmapID] = c.NodeID
		}
	}

	freshness := make(map[id.SubmapID]time.Time)
	for submapID, nodeID := range latestNode {
		if !submapData.Contains(submapID) {
			continue
		}
		node, ok := trajectoryNodes.At(nodeID)
		if !ok {
			continue
		}
		freshness[submapID] = node.ConstantData.Time
	}
	return freshness
}

// addSubmapsToGlobalGrid iterates the occupied cells of every submap with
// known freshness, transforms each cell center into the global frame and
// adds it to the grid. It returns the set of submap ids (sorted) that had
// known freshness and a non-empty grid, matching cartographer's
// AddSubmapsToGlobalGrid.
func addSubmapsToGlobalGrid(
	freshness map[id.SubmapID]time.Time,
	submapData *id.MapById[id.SubmapID, SubmapData],
	grid *globalGrid,
) []id.SubmapID {
	var allSubmapIDs []id.SubmapID
	for _, entry := range submapData.Range() {
		t, ok := freshness[entry.ID]
		if !ok {
			continue
		}

		projectedPose := entry.Data.GlobalPose.Project2D()
		resolution := entry.Data.Submap.Grid().Resolution()
		empty := true
		entry.Data.Submap.Grid().Iterate(func(x, y int, occupied bool) bool {
			if !occupied {
				return true
			}
			empty = false
			localCenter := r2.Vec{X: (float64(x) + 0.5) * resolution, Y: (float64(y) + 0.5) * resolution}
			globalCenter := projectedPose.Apply(localCenter)
			grid.addPoint(globalCenter, entry.ID, t)
			return true
		})
		if empty {
			continue
		}
		allSubmapIDs = append(allSubmapIDs, entry.ID)
	}
	sort.Slice(allSubmapIDs, func(i, j int) bool { return allSubmapIDs[i].Less(allSubmapIDs[j]) })
	return allSubmapIDs
}

// findSubmapIDsToTrim keeps, per cell, only the freshSubmapsCount freshest
// submaps; tallies how many surviving cells each submap covers; keeps
// submaps covering at least minCoveredCellsCount cells; and returns
// allSubmapIDs minus that keep-set, sorted.
func findSubmapIDsToTrim(grid *globalGrid, allSubmapIDs []id.SubmapID, freshSubmapsCount, minCoveredCellsCount uint16) []id.SubmapID {
	coveredCells := make(map[id.SubmapID]uint16)
	for _, entries := range grid.cells {
		perCell := append([]cellEntry(nil), entries...)
		if uint16(len(perCell)) > freshSubmapsCount {
			sort.Slice(perCell, func(i, j int) bool { return perCell[i].freshness.After(perCell[j].freshness) })
			perCell = perCell[:freshSubmapsCount]
		}
		for _, e := range perCell {
			coveredCells[e.submapID]++
		}
	}

	keep := make(map[id.SubmapID]bool)
	for submapID, count := range coveredCells {
		if count >= minCoveredCellsCount {
			keep[submapID] = true
		}
	}

	result := make([]id.SubmapID, 0, len(allSubmapIDs))
	for _, submapID := range allSubmapIDs {
		if !keep[submapID] {
			result = append(result, submapID)
		}
	}
	return result
}
