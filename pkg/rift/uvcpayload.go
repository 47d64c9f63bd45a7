package rift

import "encoding/binary"

// UVC payload header bit masks within bmHeaderInfo.
const (
	hdrBitFrameID   = 1 << 0
	hdrBitEOF       = 1 << 1
	hdrBitPTS       = 1 << 2
	hdrBitSCR       = 1 << 3
	hdrBitError     = 1 << 6
	payloadHeaderLen = 12
)

// uvcPayloadHeader is the 12-byte little-endian UVC isochronous payload
// header.
type uvcPayloadHeader struct {
	HeaderLength   uint8
	HeaderInfo     uint8
	PresentationTS uint32
	SofCounter     uint16
	ScrSourceClock uint32
}

// parseUVCPayloadHeader decodes the fixed 12-byte header. ok is false if
// buf is shorter than 12 bytes.
func parseUVCPayloadHeader(buf []byte) (uvcPayloadHeader, bool) {
	var h uvcPayloadHeader
	if len(buf) < payloadHeaderLen {
		return h, false
	}
	h.HeaderLength = buf[0]
	h.HeaderInfo = buf[1]
	h.PresentationTS = binary.LittleEndian.Uint32(buf[2:6])
	h.SofCounter = binary.LittleEndian.Uint16(buf[6:8])
	h.ScrSourceClock = binary.LittleEndian.Uint32(buf[8:12])
	return h, true
}

func (h uvcPayloadHeader) frameIDBit() bool { return h.HeaderInfo&hdrBitFrameID != 0 }
func (h uvcPayloadHeader) eofBit() bool     { return h.HeaderInfo&hdrBitEOF != 0 }
func (h uvcPayloadHeader) ptsPresent() bool { return h.HeaderInfo&hdrBitPTS != 0 }
func (h uvcPayloadHeader) scrPresent() bool { return h.HeaderInfo&hdrBitSCR != 0 }
func (h uvcPayloadHeader) errorBit() bool   { return h.HeaderInfo&hdrBitError != 0 }

// UVC class-specific control selectors and requests.
const (
	vsProbeControl  = 1
	vsCommitControl = 2

	reqSetCur = 0x01
	reqGetCur = 0x81

	controlTimeoutMs = 1000

	// probeCommitCoreLen is the 26-byte baseline UVC 1.0 probe/commit
	// structure. The CV1 firmware's two trailing fields (dwClockFrequency,
	// bmFramingInfo) extend this to probeCommitFullLen; see DESIGN.md for
	// the resolution of this byte-count mismatch.
	probeCommitCoreLen = 26
	probeCommitFullLen = 31
)

// probeCommitControl is the UVC probe/commit control structure, packed
// little-endian exactly as it appears on the wire.
type probeCommitControl struct {
	Hint                   uint16
	FormatIndex            uint8
	FrameIndex             uint8
	FrameInterval          uint32
	KeyFrameRate           uint16
	PFrameRate             uint16
	CompQuality            uint16
	CompWindowSize         uint16
	Delay                  uint16
	MaxVideoFrameSize      uint32
	MaxPayloadTransferSize uint32
	ClockFrequency         uint32
	FramingInfo            uint8
}

// marshal encodes c into its full (CV1-extended) wire form.
func (c probeCommitControl) marshal() []byte {
	buf := make([]byte, probeCommitFullLen)
	binary.LittleEndian.PutUint16(buf[0:2], c.Hint)
	buf[2] = c.FormatIndex
	buf[3] = c.FrameIndex
	binary.LittleEndian.PutUint32(buf[4:8], c.FrameInterval)
	binary.LittleEndian.PutUint16(buf[8:10], c.KeyFrameRate)
	binary.LittleEndian.PutUint16(buf[10:12], c.PFrameRate)
	binary.LittleEndian.PutUint16(buf[12:14], c.CompQuality)
	binary.LittleEndian.PutUint16(buf[14:16], c.CompWindowSize)
	binary.LittleEndian.PutUint16(buf[16:18], c.Delay)
	binary.LittleEndian.PutUint32(buf[18:22], c.MaxVideoFrameSize)
	binary.LittleEndian.PutUint32(buf[22:26], c.MaxPayloadTransferSize)
	binary.LittleEndian.PutUint32(buf[26:30], c.ClockFrequency)
	buf[30] = c.FramingInfo
	return buf
}

func unmarshalProbeCommit(buf []byte) probeCommitControl {
	var c probeCommitControl
	if len(buf) < 18 {
		return c
	}
	c.Hint = binary.LittleEndian.Uint16(buf[0:2])
	c.FormatIndex = buf[2]
	c.FrameIndex = buf[3]
	c.FrameInterval = binary.LittleEndian.Uint32(buf[4:8])
	c.KeyFrameRate = binary.LittleEndian.Uint16(buf[8:10])
	c.PFrameRate = binary.LittleEndian.Uint16(buf[10:12])
	c.CompQuality = binary.LittleEndian.Uint16(buf[12:14])
	c.CompWindowSize = binary.LittleEndian.Uint16(buf[14:16])
	c.Delay = binary.LittleEndian.Uint16(buf[16:18])
	if len(buf) >= 22 {
		c.MaxVideoFrameSize = binary.LittleEndian.Uint32(buf[18:22])
	}
	if len(buf) >= 26 {
		c.MaxPayloadTransferSize = binary.LittleEndian.Uint32(buf[22:26])
	}
	if len(buf) >= 30 {
		c.ClockFrequency = binary.LittleEndian.Uint32(buf[26:30])
	}
	if len(buf) >= 31 {
		c.FramingInfo = buf[30]
	}
	return c
}
