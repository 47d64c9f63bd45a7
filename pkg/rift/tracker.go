// Package rift implements the positional tracking core for a constellation
// camera + IMU head-mount tracker: isochronous USB video assembly, per-device
// delay-slot bookkeeping, and view-pose output, fused through an external
// 6-DoF pose filter supplied by the caller.
//
// # Quick Start
//
// Create a tracker with default configuration:
//
//	tracker, err := rift.NewTracker(nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracker.Close()
//
//	if err := tracker.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	poses := tracker.Subscribe()
//	for vp := range poses {
//	    fmt.Printf("pose: %+v\n", vp.Pose)
//	}
//
// # Architecture
//
//   - Tracker: owns the USB context, event thread, sensors and devices
//   - UVCStream: assembles isochronous payloads into video frames
//   - TrackedDevice: per-HMD delay slots, IMU integration, pose gating
//   - PoseFilter: external 6-DoF filter collaborator (caller-supplied)
package rift

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riftcore/rifttrack/internal/config"
)

// Common errors returned by the tracker.
var (
	ErrTrackerClosed  = errors.New("rift: tracker is closed")
	ErrTrackerRunning = errors.New("rift: tracker is already running")
	ErrTrackerStopped = errors.New("rift: tracker is not running")
	ErrUnknownDevice  = errors.New("rift: unknown device id")
	ErrUnknownSensor  = errors.New("rift: unknown sensor id")
)

// TrackerState represents the current state of the tracker.
type TrackerState int

const (
	// StateIdle means the tracker is initialized but not running.
	StateIdle TrackerState = iota
	// StateRunning means the tracker is actively pumping USB events.
	StateRunning
	// StateStopped means the tracker has been stopped.
	StateStopped
	// StateClosed means the tracker has been closed and cannot be reused.
	StateClosed
)

func (s TrackerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// USBEventPump is the narrow interface to the underlying libusb/gousb
// context the dedicated USB event thread drives. usbtransport.go implements
// this against github.com/google/gousb; tests use a no-op stub.
type USBEventPump interface {
	HandleEventsTimeout(timeoutMs int) error
}

// noopPump satisfies USBEventPump when a tracker is built without real
// hardware (e.g. unit tests, or a tracker driven purely by injected IMU/pose
// calls).
type noopPump struct{}

func (noopPump) HandleEventsTimeout(timeoutMs int) error {
	time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
	return nil
}

// eventPumpTimeoutMs is the event thread's libusb polling timeout.
const eventPumpTimeoutMs = 100

// sensor bundles one camera's UVC assembler with its delay-slot lifecycle
// hooks.
type sensor struct {
	id      string
	profile SensorProfile
	stream  *UVCStream
}

// Tracker owns the USB context, the dedicated event thread, configuration,
// sensors and devices. All cross-cutting mutation goes through t.mu;
// per-device mutation additionally goes through the device's own lock,
// always acquired after t.mu (lock ordering, never reversed).
type Tracker struct {
	cfg *config.Config

	mu      sync.Mutex
	state   TrackerState
	logger  *log.Logger
	sensors map[string]*sensor
	devices map[string]*TrackedDevice
	order   []string // device ids, stable iteration order for exposure fan-out

	exposure        ExposureInfo
	exposureHistory map[uint32]ExposureInfo // bounded recent-exposure lookup for frame lifecycle hooks

	pump USBEventPump

	group      *errgroup.Group
	groupCtx   context.Context
	cancel     context.CancelFunc
	subscribers []chan ViewPose
}

// NewTracker creates a new tracker with the given configuration. If cfg is
// nil, default configuration is used. pump may be nil to use an internal
// no-op stand-in (useful when driving the tracker purely through injected
// calls, e.g. in tests); a real deployment supplies the gousb-backed pump
// from usbtransport.go.
func NewTracker(cfg *config.Config, pump USBEventPump) (*Tracker, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rift: invalid configuration: %w", err)
	}
	if pump == nil {
		pump = noopPump{}
	}

	return &Tracker{
		cfg:             cfg,
		state:           StateIdle,
		logger:          defaultLogger,
		sensors:         make(map[string]*sensor),
		devices:         make(map[string]*TrackedDevice),
		exposureHistory: make(map[uint32]ExposureInfo),
		pump:            pump,
	}, nil
}

// Config returns the current configuration.
func (t *Tracker) Config() *config.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// SetLogger overrides the logger used by the tracker and everything it
// owns — the event thread, every registered sensor's UVCStream, and every
// registered device. Safe to call before or after Start(); devices and
// sensors added after a SetLogger call also pick it up. Passing nil
// restores defaultLogger.
func (t *Tracker) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = defaultLogger
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
	for _, s := range t.sensors {
		s.stream.SetLogger(logger)
	}
	for _, d := range t.devices {
		d.SetLogger(logger)
	}
}

func (t *Tracker) currentLogger() *log.Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.logger
}

// State returns the current tracker state.
func (t *Tracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AddDevice registers a tracked device. Must be called before Start().
func (t *Tracker) AddDevice(dev *TrackedDevice) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return fmt.Errorf("rift: cannot add device: tracker is %s", t.state)
	}
	dev.SetLogger(t.logger)
	t.devices[dev.ID()] = dev
	t.order = append(t.order, dev.ID())
	return nil
}

// AddSensor registers a UVC stream assembler under id. Must be called
// before Start().
func (t *Tracker) AddSensor(id string, profile SensorProfile, stream *UVCStream) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return fmt.Errorf("rift: cannot add sensor: tracker is %s", t.state)
	}
	stream.SetLogger(t.logger)
	t.sensors[id] = &sensor{id: id, profile: profile, stream: stream}
	return nil
}

// Subscribe returns a channel that receives a ViewPose each time a pose is
// reported through ReportPose; calling TrackedDevice.PoseUpdate directly
// does not publish to subscribers. The caller must drain the
// channel or risk missing updates — they are dropped, never blocked on.
func (t *Tracker) Subscribe() <-chan ViewPose {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan ViewPose, 16)
	t.subscribers = append(t.subscribers, ch)
	return ch
}

func (t *Tracker) broadcast(vp ViewPose) {
	t.mu.Lock()
	subs := t.subscribers
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- vp:
		default:
		}
	}
}

// Start begins the USB event thread. Returns immediately.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning:
		return ErrTrackerRunning
	case StateClosed:
		return ErrTrackerClosed
	}

	t.groupCtx, t.cancel = context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(t.groupCtx)
	t.group = group
	t.groupCtx = gctx
	t.state = StateRunning

	for _, s := range t.sensors {
		s.stream.SetRunning(true)
	}

	group.Go(t.eventLoop)

	return nil
}

// eventLoop is the dedicated USB event thread: it loops the event pump
// with a 100ms timeout until cancellation.
func (t *Tracker) eventLoop() error {
	for {
		select {
		case <-t.groupCtx.Done():
			return nil
		default:
		}
		if err := t.pump.HandleEventsTimeout(eventPumpTimeoutMs); err != nil {
			t.currentLogger().Printf("rift: usb event pump error: %v", err)
		}
	}
}

// Stop stops the event thread and waits for it to exit.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return ErrTrackerStopped
	}
	for _, s := range t.sensors {
		s.stream.SetRunning(false)
	}
	t.cancel()
	t.state = StateStopped
	group := t.group
	t.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
	return nil
}

// Close stops the tracker (if running) and releases all resources.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	running := t.state == StateRunning
	t.state = StateClosed
	t.mu.Unlock()

	if running {
		if err := t.Stop(); err != nil && !errors.Is(err, ErrTrackerStopped) {
			return err
		}
	}

	t.mu.Lock()
	for _, ch := range t.subscribers {
		close(ch)
	}
	t.subscribers = nil
	t.mu.Unlock()

	return nil
}

// maxExposureHistory bounds exposureHistory so frame lifecycle hooks can
// still resolve a slightly stale exposure count (a frame released a beat
// after the next exposure arrived) without growing unbounded.
const maxExposureHistory = 4

// HandleExposure implements the exposure-arrival contract, called by the
// external HMD HID thread on every IMU packet. If
// exposureCount differs from the stored one, the tracker advances the
// exposure info, iterates devices under both locks (tracker then
// per-device), and calls AllocateExposureSlot on each. Sensors are not
// notified: they pick up the new exposure by calling LatestExposure.
func (t *Tracker) HandleExposure(localTS, hmdTS int64, exposureCount uint32, exposureHMDTS int64, ledPatternPhase int) {
	t.mu.Lock()
	if exposureCount == t.exposure.Count {
		t.mu.Unlock()
		return
	}

	info := ExposureInfo{
		LocalTS:         localTS,
		HMDTS:           hmdTS,
		Count:           exposureCount,
		LEDPatternPhase: ledPatternPhase,
		PerDevice:       make(map[string]ExposureDeviceInfo, len(t.devices)),
	}
	for _, id := range t.order {
		dev := t.devices[id]
		info.PerDevice[id] = dev.AllocateExposureSlot() // device lock acquired inside
	}
	t.exposure = info
	t.recordExposureHistoryLocked(info)
	t.mu.Unlock()

	// Sensors learn of the new exposure by polling LatestExposure from their
	// own goroutines, outside the tracker lock — so a sensor's subsequent
	// frame lifecycle callback (which re-enters the tracker) never finds it
	// still held.
}

// LatestExposure returns a safe copy of the most recently published
// exposure snapshot, for sensors/vision-pipeline threads to poll.
func (t *Tracker) LatestExposure() ExposureInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exposure.Clone()
}

func (t *Tracker) recordExposureHistoryLocked(info ExposureInfo) {
	t.exposureHistory[info.Count] = info.Clone()
	if len(t.exposureHistory) > maxExposureHistory {
		var oldest uint32
		first := true
		for count := range t.exposureHistory {
			if first || count < oldest {
				oldest = count
				first = false
			}
		}
		delete(t.exposureHistory, oldest)
	}
}

// slotAction is either claim or release, applied to every device's delay
// slot for a given exposure count.
type slotAction func(dev *TrackedDevice, slotID int)

func claimAction(dev *TrackedDevice, slotID int)   { dev.ClaimSlot(slotID) }
func releaseAction(dev *TrackedDevice, slotID int) { dev.ReleaseSlot(slotID) }

// walkSlots implements the "walks devices, claiming/releasing delay slots
// under per-device locks" behavior shared by the frame lifecycle hooks.
// Unknown/stale exposure counts are logged and skipped.
func (t *Tracker) walkSlots(exposureCount uint32, action slotAction) {
	t.mu.Lock()
	info, ok := t.exposureHistory[exposureCount]
	order := t.order
	devices := t.devices
	t.mu.Unlock()

	if !ok {
		t.currentLogger().Printf("rift: frame lifecycle hook referenced unknown exposure_count=%d", exposureCount)
		return
	}
	for _, id := range order {
		devInfo, ok := info.PerDevice[id]
		if !ok || devInfo.FusionSlot < 0 {
			continue
		}
		action(devices[id], devInfo.FusionSlot)
	}
}

// FrameStart claims each device's delay slot for exposureCount as a sensor
// begins capturing a frame against it.
func (t *Tracker) FrameStart(exposureCount uint32) { t.walkSlots(exposureCount, claimAction) }

// FrameCaptured marks the capture phase complete; delay slot claims are
// unaffected until release or reassignment.
func (t *Tracker) FrameCaptured(exposureCount uint32) {}

// FrameChangedExposure implements the exposure-reassignment hook: a sensor
// decided mid-flight that a frame belongs to a different exposure than
// initially assumed, so the old slot is released and the new one claimed.
func (t *Tracker) FrameChangedExposure(oldExposureCount, newExposureCount uint32) {
	t.walkSlots(oldExposureCount, releaseAction)
	t.walkSlots(newExposureCount, claimAction)
}

// FrameRelease releases each device's delay slot for exposureCount once the
// frame has finished passing through the vision pipeline.
func (t *Tracker) FrameRelease(exposureCount uint32) { t.walkSlots(exposureCount, releaseAction) }

// Device looks up a registered device by id.
func (t *Tracker) Device(id string) (*TrackedDevice, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dev, ok := t.devices[id]
	if !ok {
		return nil, ErrUnknownDevice
	}
	return dev, nil
}

// ReportPose calls PoseUpdate on the named device and broadcasts the
// resulting view pose to subscribers, the way a real vision pipeline thread
// drives pose fusion and fans the result out to subscribers.
func (t *Tracker) ReportPose(deviceID string, localTS int64, exposure ExposureDeviceInfo, score MatchFlags, modelPose Pose, source string) error {
	dev, err := t.Device(deviceID)
	if err != nil {
		return err
	}
	dev.PoseUpdate(localTS, exposure, score, modelPose, source)
	t.broadcast(dev.GetViewPose(exposure.DeviceTimeNs))
	return nil
}
