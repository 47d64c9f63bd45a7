package rift

import (
	"log"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pose-match score flags carried by a vision-pipeline observation, used to
// gate position/orientation acceptance in PoseUpdate.
type MatchFlags uint8

const (
	MatchPosition MatchFlags = 1 << 0
	MatchOrient   MatchFlags = 1 << 1
)

func (f MatchFlags) has(bit MatchFlags) bool { return f&bit != 0 }

const (
	positionLockTimeoutNs    = int64(500 * 1e6) // 500ms
	orientationForceUpdateNs = int64(100 * 1e6) // 100ms
	pendingIMUCapacity       = 1000
)

// DeviceConfig carries the per-device calibration that does not change at
// runtime.
type DeviceConfig struct {
	ID               string
	DeviceFromFusion Pose // IMU-to-device-body transform
	FusionFromModel  Pose // model(LED constellation)-to-IMU transform
}

// TrackedDevice holds all per-device tracking state. All mutable state is
// guarded by mu; callers never need their own lock.
type TrackedDevice struct {
	id    string
	index int

	mu sync.Mutex

	logger *log.Logger

	filter PoseFilter
	sink   TelemetrySink

	delaySlots delaySlotTable

	deviceFromFusion Pose
	fusionFromModel  Pose
	modelFromFusion  Pose // derived: inverse of fusionFromModel

	lastDeviceTS  uint32
	haveDeviceTS  bool
	deviceTimeNs  int64

	lastReportedPoseNs   int64
	lastObservedPoseNs   int64
	lastObservedOrientNs int64

	reportedPose Pose // last pose handed to the application (device frame)
	modelPose    Pose // last accepted model-frame observation

	outputFilter *ExpPoseFilter

	pendingIMU    [pendingIMUCapacity]IMUObservation
	pendingCount  int
}

// NewTrackedDevice constructs a device with the given calibration, backed
// by filter (the external pose filter collaborator) and sink (telemetry
// flush target; pass NopTelemetrySink{} to discard).
func NewTrackedDevice(index int, cfg DeviceConfig, filter PoseFilter, sink TelemetrySink) *TrackedDevice {
	if sink == nil {
		sink = NopTelemetrySink{}
	}
	d := &TrackedDevice{
		id:               cfg.ID,
		index:            index,
		logger:           defaultLogger,
		filter:           filter,
		sink:             sink,
		delaySlots:       newDelaySlotTable(),
		deviceFromFusion: cfg.DeviceFromFusion,
		fusionFromModel:  cfg.FusionFromModel,
		modelFromFusion:  cfg.FusionFromModel.Inverse(),
		reportedPose:     IdentityPose(),
		modelPose:        IdentityPose(),
		outputFilter:     NewExpPoseFilter(0.35),
	}
	filter.Init()
	return d
}

func (d *TrackedDevice) ID() string { return d.id }
func (d *TrackedDevice) Index() int { return d.index }

// SetLogger overrides the logger used for this device's diagnostic output.
// Passing nil restores defaultLogger.
func (d *TrackedDevice) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = defaultLogger
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
}

// extendClock implements the 32-bit-to-64-bit clock extension:
// device_time_ns += uint32(new_raw - last_raw) * 1000, correctly handling
// wraparound at the 2^32-microsecond boundary because the subtraction is
// performed in uint32 arithmetic before widening.
func (d *TrackedDevice) extendClock(rawDeviceTS uint32) int64 {
	if !d.haveDeviceTS {
		d.haveDeviceTS = true
		d.lastDeviceTS = rawDeviceTS
		return d.deviceTimeNs
	}
	delta := rawDeviceTS - d.lastDeviceTS // wraps in uint32, as intended
	d.lastDeviceTS = rawDeviceTS
	d.deviceTimeNs += int64(delta) * 1000
	return d.deviceTimeNs
}

// IMUUpdate implements the IMU update contract: extend the
// clock, push the sample into the external filter, and record it in the
// pending observation ring, flushing to telemetry on overflow. dtNs is the
// sample interval reported with the packet; it is recorded as-is.
func (d *TrackedDevice) IMUUpdate(localTS int64, rawDeviceTS uint32, dtNs int64, angVel, accel, mag r3.Vec) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deviceTimeNs := d.extendClock(rawDeviceTS)

	d.filter.IMUUpdate(deviceTimeNs, angVel, accel, mag)

	d.recordObservation(IMUObservation{
		LocalTS:      localTS,
		DeviceTimeNs: deviceTimeNs,
		DtNs:         dtNs,
		AngVelX:      angVel.X, AngVelY: angVel.Y, AngVelZ: angVel.Z,
		AccelX: accel.X, AccelY: accel.Y, AccelZ: accel.Z,
		MagX: mag.X, MagY: mag.Y, MagZ: mag.Z,
	})
}

// recordObservation appends to the pending ring, flushing when full.
// Caller holds d.mu.
func (d *TrackedDevice) recordObservation(o IMUObservation) {
	if d.pendingCount >= pendingIMUCapacity {
		d.flushPendingLocked()
	}
	d.pendingIMU[d.pendingCount] = o
	d.pendingCount++
}

func (d *TrackedDevice) flushPendingLocked() {
	if d.pendingCount == 0 {
		return
	}
	batch := append([]IMUObservation(nil), d.pendingIMU[:d.pendingCount]...)
	d.pendingCount = 0
	_ = d.sink.Flush(d.id, batch)
}

// DeviceTimeNs returns the current extended device-clock time.
func (d *TrackedDevice) DeviceTimeNs() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceTimeNs
}

// AllocateExposureSlot implements the exposure allocation contract, called
// by the Tracker under its own lock and then this device's lock (lock
// ordering: tracker, then device, never reversed).
func (d *TrackedDevice) AllocateExposureSlot() ExposureDeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.flushPendingLocked() // flush on each exposure event

	info := ExposureDeviceInfo{
		DeviceTimeNs: d.deviceTimeNs,
		FusionSlot:   -1,
	}

	slot := d.delaySlots.Allocate(d.deviceTimeNs)
	if slot == nil {
		return info
	}
	info.FusionSlot = slot.SlotID
	info.HadPoseLock = d.deviceTimeNs-d.lastObservedPoseNs < positionLockTimeoutNs

	pose, posErr, rotErr := d.filter.PrepareDelaySlot(slot.SlotID, d.deviceTimeNs)
	info.CapturePose = pose
	info.PosError = posErr
	info.RotError = rotErr
	return info
}

// ClaimSlot/ReleaseSlot implement claim/release accounting as frames
// referencing this exposure arrive and are released.
func (d *TrackedDevice) ClaimSlot(slotID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delaySlots.Claim(slotID)
}

func (d *TrackedDevice) ReleaseSlot(slotID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delaySlots.Release(slotID) {
		d.filter.ReleaseDelaySlot(slotID)
	}
}

// PoseUpdate implements the pose update contract, called by the vision
// pipeline with a scored candidate pose in model space.
func (d *TrackedDevice) PoseUpdate(localTS int64, exposure ExposureDeviceInfo, score MatchFlags, modelPose Pose, source string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Step 1: convert model_pose into the IMU/fusion frame.
	fusionPose := composeFusionFromModel(d.fusionFromModel, modelPose)

	slot := d.delaySlots.Match(exposure.FusionSlot, exposure.DeviceTimeNs)
	if slot == nil {
		return // recorded nowhere: no matching slot
	}

	frameDeviceTimeNs := exposure.DeviceTimeNs

	// Step 3: deltas between the reported pose and the
	// filter's capture-time prediction. Used only for the optional debug
	// log line below; acceptance itself is governed by the gates in steps
	// 4-5.
	posDelta := positionDelta(fusionPose.Position, exposure.CapturePose.Position)
	orientDeltaRad := orientationDelta(fusionPose.Orientation, exposure.CapturePose.Orientation)
	if posDelta > 0.5 || orientDeltaRad > 1.0 {
		d.logger.Printf("device %s: large capture delta pos=%.3fm rot=%.3frad", d.id, posDelta, orientDeltaRad)
	}

	acceptPos := true
	if exposure.HadPoseLock && !score.has(MatchPosition) && d.lastObservedPoseNs > frameDeviceTimeNs {
		acceptPos = false
	}

	acceptOrient := score.has(MatchOrient) || (frameDeviceTimeNs-d.lastObservedOrientNs > orientationForceUpdateNs)

	switch {
	case acceptPos && acceptOrient:
		d.filter.PoseUpdate(slot.SlotID, frameDeviceTimeNs, fusionPose)
	case acceptPos:
		d.filter.PositionUpdate(slot.SlotID, frameDeviceTimeNs, fusionPose.Position)
	}

	if acceptPos {
		d.lastObservedPoseNs = frameDeviceTimeNs
		d.modelPose = modelPose
	}
	if acceptPos && acceptOrient {
		d.lastObservedOrientNs = frameDeviceTimeNs
	}

	d.delaySlots.RecordReport(slot.SlotID, localTS, acceptPos)
}

// composeFusionFromModel applies fusionFromModel to a model-frame pose,
// yielding the equivalent pose expressed in the fusion (IMU) frame.
func composeFusionFromModel(fusionFromModel Pose, modelPose Pose) Pose {
	return modelPose.Compose(fusionFromModel)
}

// ModelPose converts the filter's current fusion-frame estimate back into
// model space — the inverse of PoseUpdate's step 1 conversion, exercising
// modelFromFusion as the mutual inverse of fusionFromModel.
func (d *TrackedDevice) ModelPose(deviceTimeNs int64) Pose {
	d.mu.Lock()
	defer d.mu.Unlock()
	fusionPose := d.filter.PoseAt(deviceTimeNs)
	return fusionPose.Compose(d.modelFromFusion)
}
