//go:build cgo
// +build cgo

package rift

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

// USB device/interface/endpoint numbers and control-transfer constants for
// the constellation camera's UVC streaming interface. The control interface
// is fixed at 0; the streaming interface/endpoint follow the per-variant
// SensorProfile.AltSetting.
const (
	uvcStreamingInterface = 1
	uvcIsoEndpoint        = 0x81 // endpoint 0x81, isochronous IN

	// bmRequestType bytes for the UVC class-specific control transfers,
	// per the UVC 1.5 spec's GET_CUR/SET_CUR requests against a
	// VideoStreaming interface.
	bmRequestTypeSet = 0x21 // host-to-device, class, interface
	bmRequestTypeGet = 0xA1 // device-to-host, class, interface
)

// USBTransport opens one physical sensor over github.com/google/gousb and
// feeds its isochronous payloads into a UVCStream. One instance exists per
// attached camera.
type USBTransport struct {
	dev     *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	epIn    *gousb.InEndpoint
	profile SensorProfile
	stream  *UVCStream

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// OpenUSBTransport opens the USB device matching vid/pid, claims the
// streaming interface at the profile's alt setting, and negotiates
// probe/commit. The returned transport is not yet streaming; call Start.
func OpenUSBTransport(ctx *gousb.Context, vid, pid gousb.ID, profile SensorProfile, stream *UVCStream) (*USBTransport, error) {
	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("rift: opening usb device %s:%s: %w", vid, pid, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("rift: usb device %s:%s not found", vid, pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("rift: enabling auto-detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("rift: selecting usb configuration: %w", err)
	}

	t := &USBTransport{dev: dev, cfg: cfg, profile: profile, stream: stream}

	if err := t.negotiate(); err != nil {
		cfg.Close()
		dev.Close()
		return nil, err
	}

	intf, err := cfg.Interface(uvcStreamingInterface, int(profile.AltSetting))
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("rift: claiming streaming interface alt %d: %w", profile.AltSetting, err)
	}
	epIn, err := intf.InEndpoint(uvcIsoEndpoint & 0x0f)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("rift: opening isochronous endpoint: %w", err)
	}

	t.intf = intf
	t.epIn = epIn
	return t, nil
}

// negotiate performs the UVC probe/commit SET_CUR/GET_CUR exchange over a
// standard class-specific ControlTransfer.
func (t *USBTransport) negotiate() error {
	probe := t.profile.ProbeCommit()
	wire := probe.marshal()

	if _, err := t.dev.Control(bmRequestTypeSet, reqSetCur, uint16(vsProbeControl)<<8, uvcStreamingInterface, wire); err != nil {
		return fmt.Errorf("rift: SET_CUR probe control: %w", err)
	}

	readback := make([]byte, probeCommitFullLen)
	n, err := t.dev.Control(bmRequestTypeGet, reqGetCur, uint16(vsProbeControl)<<8, uvcStreamingInterface, readback)
	if err != nil {
		return fmt.Errorf("rift: GET_CUR probe control: %w", err)
	}
	negotiated := unmarshalProbeCommit(readback[:n])

	commitWire := negotiated.marshal()
	if _, err := t.dev.Control(bmRequestTypeSet, reqSetCur, uint16(vsCommitControl)<<8, uvcStreamingInterface, commitWire); err != nil {
		return fmt.Errorf("rift: SET_CUR commit control: %w", err)
	}
	return nil
}

// Start begins the isochronous read loop in a background goroutine,
// feeding every completed transfer's packets into the UVC stream assembler.
func (t *USBTransport) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true
	t.mu.Unlock()

	t.stream.SetRunning(true)
	go t.readLoop(ctx)
	return nil
}

// transferRetryLimit and transferRetryBackoff implement 
// resubmission policy: a failed isochronous transfer is retried up to 5
// times with a 500us sleep between attempts before being retired.
const (
	transferRetryLimit   = 5
	transferRetryBackoff = 500 * time.Microsecond
)

func (t *USBTransport) readLoop(ctx context.Context) {
	defer close(t.done)

	stream, err := t.epIn.NewStream(t.profile.PacketSize, t.profile.NumPackets)
	if err != nil {
		defaultLogger.Printf("rift: opening isochronous stream: %v", err)
		return
	}
	defer stream.Close()

	buf := make([]byte, t.profile.PacketSize)
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.stream.TransferSubmitted()
		n, err := stream.Read(buf)
		if err != nil {
			t.stream.TransferCompleted()
			failures++
			if failures <= transferRetryLimit {
				defaultLogger.Printf("rift: isochronous read error (attempt %d/%d): %v", failures, transferRetryLimit, err)
				time.Sleep(transferRetryBackoff)
				continue
			}
			defaultLogger.Printf("rift: isochronous transfer retired after %d failed attempts: %v", failures, err)
			return
		}
		failures = 0
		t.stream.TransferCompleted()
		t.stream.Feed(buf[:n])
	}
}

// Stop signals the read loop to exit and waits for active transfers to
// drain to zero.
func (t *USBTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	t.stream.SetRunning(false)
	cancel()
	<-done

	for t.stream.ActiveTransfers() > 0 {
		time.Sleep(time.Millisecond)
	}
	return nil
}

// Close releases the interface, configuration and device handle.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.cfg != nil {
		t.cfg.Close()
	}
	if t.dev != nil {
		return t.dev.Close()
	}
	return nil
}

// gousbEventPump adapts a *gousb.Context to USBEventPump. gousb pumps libusb
// events on its own internal goroutine rather than exposing a manual
// handle-events call the way raw libusb does, so this just paces the event
// loop's polling interval: the 100ms timeout becomes the cadence at which
// the tracker checks for shutdown, not a real libusb call.
type gousbEventPump struct {
	ctx *gousb.Context
}

// NewGousbEventPump wraps ctx as a USBEventPump.
func NewGousbEventPump(ctx *gousb.Context) USBEventPump {
	return gousbEventPump{ctx: ctx}
}

func (p gousbEventPump) HandleEventsTimeout(timeoutMs int) error {
	time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
	return nil
}
