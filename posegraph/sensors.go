package posegraph

import (
	"time"

	"go.viam.com/slam-backend/geometry"
	"go.viam.com/slam-backend/id"
	"go.viam.com/slam-backend/mapping"
	"go.viam.com/slam-backend/workqueue"
)

// AddImuData enqueues a forwarded IMU sample to the optimization adapter.
func (g *PoseGraph) AddImuData(trajectoryID id.TrajectoryID, t time.Time, linearAcceleration, angularVelocity [3]float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canAddWorkItemModifying(trajectoryID)
	g.addWorkItem(workqueue.KindSensorData, func() {
		g.problem.AddImuData(trajectoryID, t, linearAcceleration, angularVelocity)
	})
}

// AddOdometryData enqueues a forwarded odometry pose to the optimization
// adapter.
func (g *PoseGraph) AddOdometryData(trajectoryID id.TrajectoryID, t time.Time, pose geometry.Rigid3d) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canAddWorkItemModifying(trajectoryID)
	g.addWorkItem(workqueue.KindSensorData, func() {
		g.problem.AddOdometryData(trajectoryID, t, pose)
	})
}

// AddLandmarkData records a landmark observation, creating the named
// landmark node on first reference.
func (g *PoseGraph) AddLandmarkData(trajectoryID id.TrajectoryID, landmarkID string, observation mapping.LandmarkObservation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canAddWorkItemModifying(trajectoryID)
	g.addWorkItem(workqueue.KindSensorData, func() {
		node, ok := g.landmarkNodes[landmarkID]
		if !ok {
			node = &mapping.LandmarkNode{ID: landmarkID}
			g.landmarkNodes[landmarkID] = node
		}
		node.Observations = append(node.Observations, observation)
	})
}

// AddFixedFramePoseData is unimplemented in this 2D back-end: any call is
// a fatal invariant violation rather than a
// silent no-op, since a caller relying on fixed-frame fusion would
// otherwise get a pose graph silently missing data it assumed was there.
func (g *PoseGraph) AddFixedFramePoseData(trajectoryID id.TrajectoryID, t time.Time, pose geometry.Rigid3d) {
	g.mu.Lock()
	defer g.mu.Unlock()
	raiseInvariant(g.logger, "AddFixedFramePoseData is not supported by the 2D pose graph")
}
