package rift

import "fmt"

// SensorVariant identifies one of the two closed set of constellation
// camera sensors this core supports — a tagged variant with a constant
// table, no virtual hierarchy needed for a closed set this small.
type SensorVariant uint8

const (
	// SensorDK2 is the DK2-generation constellation camera.
	SensorDK2 SensorVariant = iota
	// SensorCV1 is the CV1-generation constellation camera.
	SensorCV1
)

func (v SensorVariant) String() string {
	switch v {
	case SensorDK2:
		return "dk2"
	case SensorCV1:
		return "cv1"
	default:
		return "unknown"
	}
}

// ParseSensorVariant maps a config string to a SensorVariant.
func ParseSensorVariant(s string) (SensorVariant, error) {
	switch s {
	case "dk2":
		return SensorDK2, nil
	case "cv1":
		return SensorCV1, nil
	default:
		return 0, fmt.Errorf("rift: unknown sensor variant %q", s)
	}
}

// SensorProfile carries every UVC probe/commit control parameter and
// transport-layout constant needed to negotiate and stream a given sensor
// variant.
type SensorProfile struct {
	Variant SensorVariant

	FrameIndex        uint8
	FrameInterval     uint32 // 100ns units, UVC convention
	Width, Height     int    // stride == width
	MaxVideoFrameSize uint32
	MaxPayloadSize    uint32
	ClockFrequency    uint32 // 0 means "use device default"
	PacketSize        int
	AltSetting        uint8
	NumPackets        int // packets per isochronous transfer

	// VendorInit, when true, requires the "esp570 unknown 3" pre-stream
	// vendor control sequence before probe/commit negotiation.
	VendorInit bool
}

// Profile returns the fixed UVC negotiation parameters for variant. Only
// the final num_packets computation is reproduced for DK2; there is no
// dead assignment here to carry forward.
func Profile(variant SensorVariant) SensorProfile {
	switch variant {
	case SensorDK2:
		const packetSize = 3060
		const maxPayload = 3000
		return SensorProfile{
			Variant:           SensorDK2,
			FrameIndex:        1,
			FrameInterval:     166666,
			Width:             752,
			Height:            480,
			MaxVideoFrameSize: 360960,
			MaxPayloadSize:    maxPayload,
			PacketSize:        packetSize,
			AltSetting:        7,
			NumPackets:        numPacketsForFrame(360960, packetSize),
			VendorInit:        true,
		}
	case SensorCV1:
		const packetSize = 16384
		const maxPayload = 3072
		return SensorProfile{
			Variant:           SensorCV1,
			FrameIndex:        4,
			FrameInterval:     192000,
			Width:             1280,
			Height:            960,
			MaxVideoFrameSize: 1228800,
			MaxPayloadSize:    maxPayload,
			ClockFrequency:    40000000,
			PacketSize:        packetSize,
			AltSetting:        2,
			NumPackets:        numPacketsForFrame(1228800, packetSize),
			VendorInit:        false,
		}
	default:
		return SensorProfile{}
	}
}

// numPacketsForFrame computes N such that N*packetSize covers one frame of
// frameSize bytes, rounding up.
func numPacketsForFrame(frameSize uint32, packetSize int) int {
	if packetSize <= 0 {
		return 0
	}
	n := int(frameSize) / packetSize
	if int(frameSize)%packetSize != 0 {
		n++
	}
	return n
}

// ProbeCommit builds the probe/commit control payload for this profile.
func (p SensorProfile) ProbeCommit() probeCommitControl {
	return probeCommitControl{
		FormatIndex:            1,
		FrameIndex:             p.FrameIndex,
		FrameInterval:          p.FrameInterval,
		MaxVideoFrameSize:      p.MaxVideoFrameSize,
		MaxPayloadTransferSize: p.MaxPayloadSize,
		ClockFrequency:         p.ClockFrequency,
	}
}

// Stride is always equal to Width for these sensors.
func (p SensorProfile) Stride() int { return p.Width }
