package rift

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// PoseFilter is the fixed operation set the tracker core calls on the
// external 6-DoF unscented Kalman filter. The filter's own math is out of
// scope for this module; this interface is the contract a real UKF
// implementation must satisfy, and DeterministicPoseFilter below is a
// minimal, fully in-Go stand-in used for testing the rest of the core in
// isolation.
type PoseFilter interface {
	// Init resets the filter to a known state at construction/recalibration.
	Init()

	// IMUUpdate advances the filter with one inertial sample at the given
	// extended device-clock time.
	IMUUpdate(deviceTimeNs int64, angVel, accel, mag r3.Vec)

	// PositionUpdate fuses a position-only observation, retroactively
	// applied via the named delay slot.
	PositionUpdate(slotID int, deviceTimeNs int64, position r3.Vec)

	// PoseUpdate fuses a position+orientation observation, retroactively
	// applied via the named delay slot.
	PoseUpdate(slotID int, deviceTimeNs int64, pose Pose)

	// PrepareDelaySlot tells the filter a new exposure anchor exists at
	// deviceTimeNs, identified by slotID, and returns the filter's current
	// predicted pose and covariance at that instant.
	PrepareDelaySlot(slotID int, deviceTimeNs int64) (pose Pose, posErr r3.Vec, rotErr float64)

	// ReleaseDelaySlot tells the filter the named slot's correction
	// constraint is no longer outstanding.
	ReleaseDelaySlot(slotID int)

	// PoseAt queries the filter's best pose estimate at deviceTimeNs.
	PoseAt(deviceTimeNs int64) Pose

	// KinematicsAt returns the filter's linear velocity, linear acceleration
	// and angular velocity estimates at deviceTimeNs, all in the fusion
	// (IMU) frame — the caller rotates these into the device body frame
	// alongside the pose itself.
	KinematicsAt(deviceTimeNs int64) (velocity, accel, angVel r3.Vec)
}

// DeterministicPoseFilter is a dependency-free PoseFilter implementation:
// it integrates angular velocity and acceleration with simple Euler
// integration and applies corrections as direct state overwrites rather
// than a real Kalman gain. It exists so TrackedDevice and Tracker are
// testable without the real UKF.
type DeterministicPoseFilter struct {
	lastTimeNs int64
	havePrev   bool
	pose       Pose
	velocity   r3.Vec
	lastAccel  r3.Vec
	lastAngVel r3.Vec
}

// NewDeterministicPoseFilter returns a filter initialized to identity pose.
func NewDeterministicPoseFilter() *DeterministicPoseFilter {
	f := &DeterministicPoseFilter{}
	f.Init()
	return f
}

func (f *DeterministicPoseFilter) Init() {
	f.pose = IdentityPose()
	f.velocity = r3.Vec{}
	f.lastAccel = r3.Vec{}
	f.lastAngVel = r3.Vec{}
	f.havePrev = false
	f.lastTimeNs = 0
}

func (f *DeterministicPoseFilter) IMUUpdate(deviceTimeNs int64, angVel, accel, mag r3.Vec) {
	if !f.havePrev {
		f.lastTimeNs = deviceTimeNs
		f.havePrev = true
		return
	}
	dt := float64(deviceTimeNs-f.lastTimeNs) / 1e9
	f.lastTimeNs = deviceTimeNs
	f.lastAccel = accel
	f.lastAngVel = angVel
	if dt <= 0 {
		return
	}

	// Orientation: integrate angular velocity (body frame) as a small-angle
	// quaternion delta.
	speed := r3.Norm(angVel)
	angle := speed * dt
	if angle > 0 {
		axis := r3.Scale(1/speed, angVel)
		delta := axisAngleQuat(axis, angle)
		f.pose.Orientation = normalizeQuat(quat.Mul(f.pose.Orientation, delta))
	}

	// Position: integrate world-frame acceleration (gravity is assumed
	// pre-subtracted by the caller) into velocity and position.
	worldAccel := f.pose.ApplyRotation(accel)
	f.velocity = r3.Add(f.velocity, r3.Scale(dt, worldAccel))
	f.pose.Position = r3.Add(f.pose.Position, r3.Scale(dt, f.velocity))
}

func (f *DeterministicPoseFilter) PositionUpdate(slotID int, deviceTimeNs int64, position r3.Vec) {
	f.pose.Position = position
}

func (f *DeterministicPoseFilter) PoseUpdate(slotID int, deviceTimeNs int64, pose Pose) {
	f.pose = pose
}

func (f *DeterministicPoseFilter) PrepareDelaySlot(slotID int, deviceTimeNs int64) (Pose, r3.Vec, float64) {
	return f.pose, r3.Vec{X: 0.01, Y: 0.01, Z: 0.01}, 0.01
}

func (f *DeterministicPoseFilter) ReleaseDelaySlot(slotID int) {}

func (f *DeterministicPoseFilter) PoseAt(deviceTimeNs int64) Pose {
	return f.pose
}

func (f *DeterministicPoseFilter) KinematicsAt(deviceTimeNs int64) (velocity, accel, angVel r3.Vec) {
	return f.velocity, f.lastAccel, f.lastAngVel
}

// axisAngleQuat builds the unit quaternion representing a rotation of
// angle radians about the given (unit) axis.
func axisAngleQuat(axis r3.Vec, angle float64) quat.Number {
	half := angle / 2
	s := math.Sin(half)
	return quat.Number{
		Real: math.Cos(half),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}
