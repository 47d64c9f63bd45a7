package rift

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNopTelemetrySink(t *testing.T) {
	var s NopTelemetrySink
	require.NoError(t, s.Flush("hmd", []IMUObservation{{LocalTS: 1}}))
}

func TestMemoryTelemetrySink_Count(t *testing.T) {
	sink := NewMemoryTelemetrySink()
	sink.Flush("hmd", []IMUObservation{{LocalTS: 1}, {LocalTS: 2}})
	sink.Flush("hmd", []IMUObservation{{LocalTS: 3}})
	sink.Flush("controller", []IMUObservation{{LocalTS: 1}})

	require.Equal(t, 3, sink.Count("hmd"))
	require.Equal(t, 1, sink.Count("controller"))
	require.Equal(t, 0, sink.Count("unknown"))
}

func TestMemoryTelemetrySink_CopiesBatch(t *testing.T) {
	sink := NewMemoryTelemetrySink()
	obs := []IMUObservation{{LocalTS: 1}}
	sink.Flush("hmd", obs)
	obs[0].LocalTS = 99

	require.Equal(t, int64(1), sink.Batches["hmd"][0][0].LocalTS)
}

func TestCSVTelemetrySink_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVTelemetrySink(&buf)

	obs := []IMUObservation{
		{LocalTS: 1, DeviceTimeNs: 1000, DtNs: 100, AngVelX: 0.5, AccelZ: 9.8},
	}
	require.NoError(t, sink.Flush("hmd", obs))
	require.NoError(t, sink.Flush("hmd", obs))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "device_id,local_ts"))
	require.True(t, strings.HasPrefix(lines[1], "hmd,1,1000,100"))
}
