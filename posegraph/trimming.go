package posegraph

import (
	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/trimmer"
)

// trimmingHandle is the short-lived view of the pose graph handed to a
// trimmer's Trim call: it must not outlive that call, since every method
// assumes the pose-graph lock is already held.
type trimmingHandle struct {
	g *PoseGraph
}

// GetConstraints implements trimmer.Trimmable.
func (h trimmingHandle) GetConstraints() []mapping.Constraint {
	return append([]mapping.Constraint(nil), h.g.constraintList...)
}

// GetAllSubmapData implements trimmer.Trimmable, joining each submap with
// its current global pose from the optimizer.
func (h trimmingHandle) GetAllSubmapData() *id.MapById[id.SubmapID, trimmer.SubmapData] {
	poses := h.g.problem.SubmapData()
	out := id.NewMapById[id.SubmapID, trimmer.SubmapData](newSubmapID)
	for _, entry := range h.g.submapData.Range() {
		pose2D, _ := poses.At(entry.ID)
		out.Insert(entry.ID, trimmer.SubmapData{
			Submap:     entry.Data.Submap,
			GlobalPose: geometry.Embed3D(pose2D),
		})
	}
	return out
}

// GetTrajectoryNodes implements trimmer.Trimmable. The returned map is
// read-only for the duration of the Trim call that produced this handle.
func (h trimmingHandle) GetTrajectoryNodes() *id.MapById[id.NodeID, mapping.TrajectoryNode] {
	return h.g.trajectoryNodes
}

// MarkSubmapAsTrimmed implements trimmer.Trimmable.
func (h trimmingHandle) MarkSubmapAsTrimmed(submapID id.SubmapID) {
	h.trimSubmapLocked(submapID)
}

// trimSubmapLocked implements TrimmingHandle.TrimSubmap: it
// atomically removes a finished submap, every constraint referencing it
// (intra- and inter-submap), and any node left with no surviving
// intra-submap tie together with that node's constraints. The caller must
// hold g.mu.
func (h trimmingHandle) trimSubmapLocked(submapID id.SubmapID) {
	g := h.g
	data, ok := g.submapData.At(submapID)
	if !ok {
		return
	}
	if data.State != mapping.SubmapFinished {
		raiseInvariant(g.logger, "cannot trim non-finished submap %s", submapID)
	}

	nodesToRetain := make(map[id.NodeID]bool)
	for _, c := range g.constraintList {
		if c.Tag == mapping.IntraSubmap && c.SubmapID != submapID {
			nodesToRetain[c.NodeID] = true
		}
	}

	kept := g.constraintList[:0:0]
	nodesToRemove := make(map[id.NodeID]bool)
	for _, c := range g.constraintList {
		if c.SubmapID == submapID {
			if c.Tag == mapping.IntraSubmap && !nodesToRetain[c.NodeID] {
				nodesToRemove[c.NodeID] = true
			}
			continue
		}
		kept = append(kept, c)
	}

	final := kept[:0:0]
	for _, c := range kept {
		if nodesToRemove[c.NodeID] {
			continue
		}
		final = append(final, c)
	}
	g.constraintList = final

	g.submapData.Trim(submapID)
	g.builder.DeleteScanMatcher(submapID)
	g.problem.TrimSubmap(submapID)

	for nodeID := range nodesToRemove {
		g.trajectoryNodes.Trim(nodeID)
		g.problem.TrimTrajectoryNode(nodeID)
	}
}
