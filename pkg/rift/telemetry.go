package rift

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// IMUObservation is one entry in a TrackedDevice's pending observation
// ring, flushed to a TelemetrySink on overflow or on each exposure event.
type IMUObservation struct {
	LocalTS      int64
	DeviceTimeNs int64
	DtNs         int64
	AngVelX, AngVelY, AngVelZ float64
	AccelX, AccelY, AccelZ    float64
	MagX, MagY, MagZ          float64
}

// csvHeader/csvRow lay out one flat row per observation, device id
// prepended by the caller.
func (IMUObservation) csvHeader() []string {
	return []string{
		"local_ts", "device_time_ns", "dt_ns",
		"ang_vel_x", "ang_vel_y", "ang_vel_z",
		"accel_x", "accel_y", "accel_z",
		"mag_x", "mag_y", "mag_z",
	}
}

func (o IMUObservation) csvRow() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	return []string{
		i(o.LocalTS), i(o.DeviceTimeNs), i(o.DtNs),
		f(o.AngVelX), f(o.AngVelY), f(o.AngVelZ),
		f(o.AccelX), f(o.AccelY), f(o.AccelZ),
		f(o.MagX), f(o.MagY), f(o.MagZ),
	}
}

// TelemetrySink receives flushed batches of IMU observations. Implementations
// must be safe for concurrent Flush calls from different devices.
type TelemetrySink interface {
	Flush(deviceID string, obs []IMUObservation) error
}

// NopTelemetrySink discards everything. Used when telemetry is disabled.
type NopTelemetrySink struct{}

func (NopTelemetrySink) Flush(string, []IMUObservation) error { return nil }

// CSVTelemetrySink writes flushed observations as CSV rows prefixed with
// the device ID.
type CSVTelemetrySink struct {
	mu          sync.Mutex
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVTelemetrySink wraps an io.Writer (typically an *os.File) as a sink.
func NewCSVTelemetrySink(w io.Writer) *CSVTelemetrySink {
	return &CSVTelemetrySink{w: csv.NewWriter(w)}
}

func (s *CSVTelemetrySink) Flush(deviceID string, obs []IMUObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wroteHeader {
		if err := s.w.Write(append([]string{"device_id"}, IMUObservation{}.csvHeader()...)); err != nil {
			return fmt.Errorf("rift: writing telemetry header: %w", err)
		}
		s.wroteHeader = true
	}

	for _, o := range obs {
		row := append([]string{deviceID}, o.csvRow()...)
		if err := s.w.Write(row); err != nil {
			return fmt.Errorf("rift: writing telemetry row: %w", err)
		}
	}
	s.w.Flush()
	return s.w.Error()
}

// MemoryTelemetrySink accumulates everything in memory; used by tests.
type MemoryTelemetrySink struct {
	mu      sync.Mutex
	Batches map[string][][]IMUObservation
}

func NewMemoryTelemetrySink() *MemoryTelemetrySink {
	return &MemoryTelemetrySink{Batches: make(map[string][][]IMUObservation)}
}

func (s *MemoryTelemetrySink) Flush(deviceID string, obs []IMUObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]IMUObservation, len(obs))
	copy(cp, obs)
	s.Batches[deviceID] = append(s.Batches[deviceID], cp)
	return nil
}

// Count returns the total number of observations flushed for deviceID.
func (s *MemoryTelemetrySink) Count(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.Batches[deviceID] {
		n += len(b)
	}
	return n
}
