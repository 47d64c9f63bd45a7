package rift

import "testing"

func TestParseUVCPayloadHeader(t *testing.T) {
	buf := []byte{
		12,         // bHeaderLength
		0b00000101, // bmHeaderInfo: frame-id + PTS present
		0xE8, 0x03, 0x00, 0x00, // dwPresentationTime = 1000
		0x2A, 0x00, // wSofCounter = 42
		0x00, 0x00, 0x00, 0x00, // scrSourceClock
	}
	hdr, ok := parseUVCPayloadHeader(buf)
	if !ok {
		t.Fatal("expected header to parse")
	}
	if hdr.HeaderLength != 12 {
		t.Errorf("expected HeaderLength 12, got %d", hdr.HeaderLength)
	}
	if hdr.PresentationTS != 1000 {
		t.Errorf("expected PTS 1000, got %d", hdr.PresentationTS)
	}
	if hdr.SofCounter != 42 {
		t.Errorf("expected SofCounter 42, got %d", hdr.SofCounter)
	}
	if !hdr.frameIDBit() {
		t.Error("expected frame-id bit set")
	}
	if !hdr.ptsPresent() {
		t.Error("expected PTS-present bit set")
	}
	if hdr.eofBit() || hdr.scrPresent() || hdr.errorBit() {
		t.Error("expected EOF/SCR/error bits clear")
	}
}

func TestParseUVCPayloadHeader_TooShort(t *testing.T) {
	if _, ok := parseUVCPayloadHeader([]byte{1, 2, 3}); ok {
		t.Error("expected short buffer to fail to parse")
	}
}

func TestUVCHeaderBits(t *testing.T) {
	h := uvcPayloadHeader{HeaderInfo: hdrBitEOF | hdrBitSCR | hdrBitError}
	if h.frameIDBit() || h.ptsPresent() {
		t.Error("expected frame-id/PTS bits clear")
	}
	if !h.eofBit() || !h.scrPresent() || !h.errorBit() {
		t.Error("expected EOF/SCR/error bits set")
	}
}

func TestProbeCommitMarshalRoundTrip(t *testing.T) {
	c := probeCommitControl{
		Hint:                   1,
		FormatIndex:            1,
		FrameIndex:             4,
		FrameInterval:          192000,
		MaxVideoFrameSize:      1228800,
		MaxPayloadTransferSize: 3072,
		ClockFrequency:         40000000,
	}
	wire := c.marshal()
	if len(wire) != probeCommitFullLen {
		t.Fatalf("expected wire length %d, got %d", probeCommitFullLen, len(wire))
	}

	got := unmarshalProbeCommit(wire)
	if got.FrameIndex != c.FrameIndex || got.FrameInterval != c.FrameInterval ||
		got.MaxVideoFrameSize != c.MaxVideoFrameSize ||
		got.MaxPayloadTransferSize != c.MaxPayloadTransferSize ||
		got.ClockFrequency != c.ClockFrequency {
		t.Errorf("round trip mismatch: got %+v, want fields from %+v", got, c)
	}
}

func TestUnmarshalProbeCommit_ShortBuffer(t *testing.T) {
	// A GET_CUR response shorter than the full 31-byte CV1-extended layout
	// (e.g. a baseline-26-byte UVC 1.0 device) should decode the fields it
	// can and leave the rest zero rather than panicking.
	got := unmarshalProbeCommit(make([]byte, 18))
	if got.MaxVideoFrameSize != 0 || got.ClockFrequency != 0 {
		t.Errorf("expected zero-valued trailing fields, got %+v", got)
	}
}
