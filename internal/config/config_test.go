package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Tracker.DelaySlotsPerDevice != 3 {
		t.Errorf("expected DelaySlotsPerDevice 3, got %d", cfg.Tracker.DelaySlotsPerDevice)
	}
	if cfg.Tracker.PositionLockTimeoutMs != 500 {
		t.Errorf("expected PositionLockTimeoutMs 500, got %d", cfg.Tracker.PositionLockTimeoutMs)
	}
	if cfg.Tracker.OrientationForceUpdateMs != 100 {
		t.Errorf("expected OrientationForceUpdateMs 100, got %d", cfg.Tracker.OrientationForceUpdateMs)
	}
	if len(cfg.Sensors) != 1 || cfg.Sensors[0].Variant != "cv1" {
		t.Errorf("expected one cv1 sensor, got %+v", cfg.Sensors)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].ID != "hmd" {
		t.Errorf("expected one hmd device, got %+v", cfg.Devices)
	}
	if cfg.Telemetry.Enabled {
		t.Error("expected Telemetry.Enabled to be false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("unexpected error for non-existent file: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config for non-existent file")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	content := `
[tracker]
delay_slots_per_device = 3
position_lock_timeout_ms = 500
orientation_force_update_ms = 100
pending_imu_capacity = 1000

[[sensor]]
variant = "dk2"
product_id = "0x0101"

[[device]]
id = "hmd"
device_from_fusion = { position = [0.01, 0.02, 0.03], orientation = [0, 0, 0, 1] }
fusion_from_model  = { position = [0, 0, 0], orientation = [0, 0, 0, 1] }

[telemetry]
enabled = true
path = "trace.csv"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Sensors) != 1 || cfg.Sensors[0].Variant != "dk2" {
		t.Errorf("expected one dk2 sensor, got %+v", cfg.Sensors)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].ID != "hmd" {
		t.Errorf("expected one hmd device, got %+v", cfg.Devices)
	}
	if cfg.Devices[0].DeviceFromFusion.Position[0] != 0.01 {
		t.Errorf("expected device_from_fusion.position[0] 0.01, got %v", cfg.Devices[0].DeviceFromFusion.Position)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Path != "trace.csv" {
		t.Errorf("expected telemetry enabled with path trace.csv, got %+v", cfg.Telemetry)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.toml")
	if err := os.WriteFile(path, []byte("invalid [ toml"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestValidate_WrongDelaySlotCount(t *testing.T) {
	cfg := Default()
	cfg.Tracker.DelaySlotsPerDevice = 4
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for delay_slots_per_device != 3")
	}
}

func TestValidate_InvalidTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Tracker.PositionLockTimeoutMs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive position_lock_timeout_ms")
	}

	cfg = Default()
	cfg.Tracker.OrientationForceUpdateMs = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive orientation_force_update_ms")
	}
}

func TestValidate_UnknownSensorVariant(t *testing.T) {
	cfg := Default()
	cfg.Sensors = []SensorConfig{{Variant: "dk3"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown sensor variant")
	}
}

func TestValidate_EmptyDeviceID(t *testing.T) {
	cfg := Default()
	cfg.Devices = []DeviceConfig{{ID: ""}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty device id")
	}
}
