// Command rifttrackd wires a USB constellation camera and the rift tracking
// core together and prints pose samples to stdout. HID report parsing and
// the vision pipeline that scores candidate poses are not implemented here;
// they're external collaborators the core only calls into.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/gousb"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/riftcore/rifttrack/internal/config"
	"github.com/riftcore/rifttrack/pkg/rift"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	vidFlag := flag.String("vid", "", "USB vendor ID (hex, overrides config), e.g. 0x2833")
	pidFlag := flag.String("pid", "", "USB product ID (hex, overrides config sensor[0])")
	preview := flag.Bool("preview", false, "Show a debug preview window for assembled frames")
	verbose := flag.Bool("verbose", false, "Enable verbose pose logging")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "rifttrackd - positional tracking core driver\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                           # Run with default config\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config rift.toml         # Run with custom config\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -vid 0x2833 -pid 0x0201   # Override sensor VID/PID\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -preview -verbose         # Debug session\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("rifttrackd version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if len(cfg.Sensors) == 0 {
		log.Fatalf("configuration has no [[sensor]] entries")
	}
	if *pidFlag != "" {
		cfg.Sensors[0].ProductID = *pidFlag
	}

	vid := "0x2833" // OpenHMD/Rift Sensor vendor ID convention used across the pack's USB examples
	if *vidFlag != "" {
		vid = *vidFlag
	}

	if *verbose {
		log.Printf("config: %d sensor(s), %d device(s), telemetry enabled=%v",
			len(cfg.Sensors), len(cfg.Devices), cfg.Telemetry.Enabled)
	}

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	tracker, err := rift.NewTracker(cfg, rift.NewGousbEventPump(usbCtx))
	if err != nil {
		log.Fatalf("creating tracker: %v", err)
	}
	defer tracker.Close()

	sink, err := telemetrySink(cfg.Telemetry)
	if err != nil {
		log.Fatalf("opening telemetry sink: %v", err)
	}

	for i, dc := range cfg.Devices {
		dev := rift.NewTrackedDevice(i, rift.DeviceConfig{
			ID:               dc.ID,
			DeviceFromFusion: poseFromConfig(dc.DeviceFromFusion),
			FusionFromModel:  poseFromConfig(dc.FusionFromModel),
		}, rift.NewDeterministicPoseFilter(), sink)
		if err := tracker.AddDevice(dev); err != nil {
			log.Fatalf("adding device %s: %v", dc.ID, err)
		}
	}

	var previewWin *rift.PreviewWindow
	transports := make([]*rift.USBTransport, 0, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		variant, err := rift.ParseSensorVariant(sc.Variant)
		if err != nil {
			log.Fatalf("sensor[%d]: %v", i, err)
		}
		profile := rift.Profile(variant)

		pool, err := rift.NewFramePool(4, profile.Stride(), profile.Width, profile.Height)
		if err != nil {
			log.Fatalf("sensor[%d]: allocating frame pool: %v", i, err)
		}

		onFrame := func(frame *rift.VideoFrame) {
			if previewWin != nil {
				previewWin.Show(frame)
				return
			}
			frame.Release()
		}
		stream := rift.NewUVCStream(pool, profile, onFrame, nil, nil)
		if err := tracker.AddSensor(sc.Variant, profile, stream); err != nil {
			log.Fatalf("sensor[%d]: %v", i, err)
		}

		vidU, err := parseUSBID(vid)
		if err != nil {
			log.Fatalf("sensor[%d]: parsing vendor id: %v", i, err)
		}
		pidU, err := parseUSBID(sc.ProductID)
		if err != nil {
			log.Fatalf("sensor[%d]: parsing product id: %v", i, err)
		}

		transport, err := rift.OpenUSBTransport(usbCtx, gousb.ID(vidU), gousb.ID(pidU), profile, stream)
		if err != nil {
			log.Fatalf("sensor[%d]: opening usb transport: %v", i, err)
		}
		transports = append(transports, transport)
	}

	if *preview {
		previewWin = rift.NewPreviewWindow("rifttrack preview")
		defer previewWin.Close()
	}

	var poseCh <-chan rift.ViewPose
	if *verbose {
		poseCh = tracker.Subscribe()
	}

	if err := tracker.Start(); err != nil {
		log.Fatalf("starting tracker: %v", err)
	}
	for _, transport := range transports {
		if err := transport.Start(); err != nil {
			log.Fatalf("starting usb transport: %v", err)
		}
	}
	log.Println("tracking started, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	samples := uint64(0)
	lastLog := time.Now()
loop:
	for {
		select {
		case sig := <-sigCh:
			log.Printf("received signal %v, shutting down", sig)
			break loop
		case vp, ok := <-poseCh:
			if !ok {
				poseCh = nil
				continue
			}
			samples++
			if time.Since(lastLog) >= time.Second {
				log.Printf("pose: t=%dns pos=%.3f,%.3f,%.3f stale=%v (n=%d)",
					vp.DeviceTimeNs, vp.Pose.Position.X, vp.Pose.Position.Y, vp.Pose.Position.Z,
					vp.PositionStale, samples)
				lastLog = time.Now()
			}
		}
	}

	for _, transport := range transports {
		if err := transport.Stop(); err != nil {
			log.Printf("stopping usb transport: %v", err)
		}
		if err := transport.Close(); err != nil {
			log.Printf("closing usb transport: %v", err)
		}
	}
}

func poseFromConfig(pc config.PoseConfig) rift.Pose {
	return rift.Pose{
		Position: r3.Vec{X: pc.Position[0], Y: pc.Position[1], Z: pc.Position[2]},
		Orientation: quat.Number{
			Imag: pc.Orientation[0],
			Jmag: pc.Orientation[1],
			Kmag: pc.Orientation[2],
			Real: pc.Orientation[3],
		},
	}
}

func parseUSBID(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty USB id")
	}
	return strconv.ParseUint(s, 0, 16)
}

func telemetrySink(tc config.TelemetryConfig) (rift.TelemetrySink, error) {
	if !tc.Enabled {
		return rift.NopTelemetrySink{}, nil
	}
	f, err := os.Create(tc.Path)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry file %s: %w", tc.Path, err)
	}
	return rift.NewCSVTelemetrySink(f), nil
}
