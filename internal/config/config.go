// Package config provides TOML configuration loading for the tracking core.
//
// The configuration file supports the following structure:
//
//	[tracker]
//	delay_slots_per_device = 3
//	position_lock_timeout_ms = 500
//	orientation_force_update_ms = 100
//	pending_imu_capacity = 1000
//
//	[[sensor]]
//	variant = "cv1"
//	product_id = "0x0201"
//	serial = ""
//
//	[[device]]
//	id = "hmd"
//	device_from_fusion = { position = [0,0,0], orientation = [0,0,0,1] }
//	fusion_from_model  = { position = [0,0,0], orientation = [0,0,0,1] }
//
//	[telemetry]
//	enabled = false
//	path = "imu_trace.csv"
//
// Example usage:
//
//	cfg, err := config.Load("config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("sensors: %d\n", len(cfg.Sensors))
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the complete tracker configuration.
type Config struct {
	Tracker   TrackerConfig  `toml:"tracker"`
	Sensors   []SensorConfig `toml:"sensor"`
	Devices   []DeviceConfig `toml:"device"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// TrackerConfig holds the fixed tracking-core parameters.
type TrackerConfig struct {
	// DelaySlotsPerDevice must equal 3 — the core design parameter the
	// delay-slot reclamation algorithm is built around. It is present in
	// the file for documentation and fail-fast validation, not because the
	// core supports any other value.
	DelaySlotsPerDevice int `toml:"delay_slots_per_device"`
	// PositionLockTimeoutMs names the position-lock staleness threshold
	// (default: 500). It is validated only; pkg/rift uses its fixed 500ms
	// constant and does not read this value.
	PositionLockTimeoutMs int `toml:"position_lock_timeout_ms"`
	// OrientationForceUpdateMs names the forced orientation refresh interval
	// (default: 100). It is validated only; pkg/rift uses its fixed 100ms
	// constant and does not read this value.
	OrientationForceUpdateMs int `toml:"orientation_force_update_ms"`
	// PendingIMUCapacity names the per-device pending-observation ring size
	// (default: 1000). It is validated only; pkg/rift uses its fixed
	// capacity of 1000 and does not read this value.
	PendingIMUCapacity int `toml:"pending_imu_capacity"`
}

// SensorConfig identifies one constellation camera to attach at startup.
type SensorConfig struct {
	// Variant selects the UVC negotiation profile: "dk2" or "cv1".
	Variant string `toml:"variant"`
	// ProductID is the USB product ID, as a "0x"-prefixed hex string.
	ProductID string `toml:"product_id"`
	// Serial optionally pins a specific unit when more than one sensor of
	// the same variant is attached.
	Serial string `toml:"serial"`
}

// PoseConfig is a TOML-friendly rigid transform: position in meters,
// orientation as an [x, y, z, w] quaternion.
type PoseConfig struct {
	Position    [3]float64 `toml:"position"`
	Orientation [4]float64 `toml:"orientation"`
}

// DeviceConfig describes one tracked device's fixed calibration.
type DeviceConfig struct {
	ID               string     `toml:"id"`
	DeviceFromFusion PoseConfig `toml:"device_from_fusion"`
	FusionFromModel  PoseConfig `toml:"fusion_from_model"`
}

// TelemetryConfig controls the IMU observation CSV sink.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the default configuration: one CV1 sensor, one "hmd"
// device at identity calibration, telemetry disabled.
func Default() *Config {
	identity := PoseConfig{Orientation: [4]float64{0, 0, 0, 1}}
	return &Config{
		Tracker: TrackerConfig{
			DelaySlotsPerDevice:      3,
			PositionLockTimeoutMs:    500,
			OrientationForceUpdateMs: 100,
			PendingIMUCapacity:       1000,
		},
		Sensors: []SensorConfig{
			{Variant: "cv1", ProductID: "0x0201"},
		},
		Devices: []DeviceConfig{
			{ID: "hmd", DeviceFromFusion: identity, FusionFromModel: identity},
		},
		Telemetry: TelemetryConfig{Enabled: false, Path: "imu_trace.csv"},
	}
}

// Load reads and parses a TOML configuration file.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Decode into a fresh zero-value Config so file-absent sections don't
	// silently inherit Default()'s slices.
	cfg = &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Tracker.DelaySlotsPerDevice != 3 {
		return fmt.Errorf("delay_slots_per_device must be 3, got %d", c.Tracker.DelaySlotsPerDevice)
	}
	if c.Tracker.PositionLockTimeoutMs <= 0 {
		return fmt.Errorf("position_lock_timeout_ms must be positive, got %d", c.Tracker.PositionLockTimeoutMs)
	}
	if c.Tracker.OrientationForceUpdateMs <= 0 {
		return fmt.Errorf("orientation_force_update_ms must be positive, got %d", c.Tracker.OrientationForceUpdateMs)
	}
	if c.Tracker.PendingIMUCapacity <= 0 {
		return fmt.Errorf("pending_imu_capacity must be positive, got %d", c.Tracker.PendingIMUCapacity)
	}
	for i, s := range c.Sensors {
		switch s.Variant {
		case "dk2", "cv1":
		default:
			return fmt.Errorf("sensor[%d]: unknown variant %q", i, s.Variant)
		}
	}
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device[%d]: id must not be empty", i)
		}
	}
	return nil
}
