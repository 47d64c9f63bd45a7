package rift

import "gonum.org/v1/gonum/spatial/r3"

// DevicePoseError holds the filter's covariance estimate at capture time,
// queried when an exposure is allocated.
type DevicePoseError struct {
	Position r3.Vec  // per-axis position std-dev
	Rotation float64 // rotation std-dev, radians
}

// ExposureDeviceInfo is the per-device snapshot taken at exposure time.
type ExposureDeviceInfo struct {
	DeviceTimeNs int64
	FusionSlot   int // -1 if no slot was available
	HadPoseLock  bool
	CapturePose  Pose
	PosError     r3.Vec
	RotError     float64
}

// ExposureInfo is the tracker-wide snapshot of the most recent outstanding
// exposure. It is immutable after publication; readers copy it by value
// under the tracker lock, so no further synchronization is needed once a
// copy is obtained.
type ExposureInfo struct {
	LocalTS        int64
	HMDTS          int64
	Count          uint32
	LEDPatternPhase int
	PerDevice      map[string]ExposureDeviceInfo
}

// Clone returns a deep-enough copy of e for safe use outside the tracker
// lock (the PerDevice map is copied; the ExposureDeviceInfo values it holds
// are already plain value types).
func (e ExposureInfo) Clone() ExposureInfo {
	out := e
	out.PerDevice = make(map[string]ExposureDeviceInfo, len(e.PerDevice))
	for k, v := range e.PerDevice {
		out.PerDevice[k] = v
	}
	return out
}
