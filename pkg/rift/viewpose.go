package rift

import "gonum.org/v1/gonum/spatial/r3"

// ViewPose is the user-visible tracking result returned by GetViewPose:
// device-body-frame pose plus kinematics, smoothed and gated by observation
// recency.
type ViewPose struct {
	DeviceTimeNs int64
	Pose         Pose
	Velocity     r3.Vec
	Accel        r3.Vec
	AngularVel   r3.Vec

	// PositionStale reports whether device_time_ns - last_observed_pose_ns
	// had already crossed the 500ms threshold, i.e. position was frozen and
	// velocity/accel were zeroed rather than read live from the filter.
	PositionStale bool
}

// GetViewPose queries the filter, converts the IMU frame into the device
// body frame via device_from_fusion, freezes position and zeroes velocities
// once the position lock has timed out, then smooths through the per-device
// exponential output filter — applied at most once per distinct
// device_time_ns.
func (d *TrackedDevice) GetViewPose(deviceTimeNs int64) ViewPose {
	d.mu.Lock()
	defer d.mu.Unlock()

	fusionPose := d.filter.PoseAt(deviceTimeNs)
	velocity, accel, angVel := d.filter.KinematicsAt(deviceTimeNs)

	devicePose := fusionPose.Compose(d.deviceFromFusion)
	deviceVel := d.deviceFromFusion.ApplyRotation(velocity)
	deviceAccel := d.deviceFromFusion.ApplyRotation(accel)
	deviceAngVel := d.deviceFromFusion.ApplyRotation(angVel)

	// Linear velocity at the device body picks up a cross-product lever-arm
	// term from angular velocity and the IMU-to-device offset:
	// v_device = v_imu + ω × r, r being the device's offset from the
	// fusion (IMU) origin, both already expressed in the device frame above.
	lever := r3.Cross(deviceAngVel, d.deviceFromFusion.Position)
	deviceVel = r3.Add(deviceVel, lever)

	stale := deviceTimeNs-d.lastObservedPoseNs >= positionLockTimeoutNs
	if stale {
		devicePose.Position = d.reportedPose.Position
		deviceVel = r3.Vec{}
		deviceAccel = r3.Vec{}
	}

	out := Pose{Position: devicePose.Position, Orientation: devicePose.Orientation}
	if d.lastReportedPoseNs < deviceTimeNs {
		out = d.outputFilter.Update(out)
		d.lastReportedPoseNs = deviceTimeNs
		d.reportedPose = out
	} else {
		out = d.reportedPose
	}

	return ViewPose{
		DeviceTimeNs:  deviceTimeNs,
		Pose:          out,
		Velocity:      deviceVel,
		Accel:         deviceAccel,
		AngularVel:    deviceAngVel,
		PositionStale: stale,
	}
}
