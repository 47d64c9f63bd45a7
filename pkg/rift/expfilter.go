package rift

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// ExpPoseFilter is an exponential moving filter over Pose (position and
// orientation), applied once per distinct device-clock timestamp. It is
// this module's own smoothing stage, distinct from the external Kalman/UKF
// pose filter (PoseFilter) that drives the estimate in the first place —
// a mutex-guarded reset/update pair over a smoothed Pose rather than a
// scalar.
type ExpPoseFilter struct {
	mu sync.Mutex

	alpha       float64 // 0 = max smoothing, 1 = no smoothing
	initialized bool
	pose        Pose
}

// NewExpPoseFilter creates a filter with the given smoothing factor alpha
// in (0,1].
func NewExpPoseFilter(alpha float64) *ExpPoseFilter {
	if alpha <= 0 {
		alpha = 0.01
	}
	if alpha > 1 {
		alpha = 1
	}
	return &ExpPoseFilter{alpha: alpha}
}

// Update blends measurement into the running estimate and returns it.
func (f *ExpPoseFilter) Update(measurement Pose) Pose {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		f.pose = measurement
		f.initialized = true
		return f.pose
	}

	f.pose.Position = lerpVec(f.pose.Position, measurement.Position, f.alpha)
	f.pose.Orientation = slerp(f.pose.Orientation, measurement.Orientation, f.alpha)
	return f.pose
}

// Reset clears the filter so the next Update seeds it directly.
func (f *ExpPoseFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = false
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Vec{
		X: a.X + t*(b.X-a.X),
		Y: a.Y + t*(b.Y-a.Y),
		Z: a.Z + t*(b.Z-a.Z),
	}
}
