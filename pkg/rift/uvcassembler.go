package rift

import (
	"log"
	"sync"
	"time"
)

// FrameCallback receives a fully assembled video frame. The callback is
// responsible for eventually calling frame.Release().
type FrameCallback func(frame *VideoFrame)

// NowFunc returns the host monotonic clock in nanoseconds; overridable for
// deterministic tests.
type NowFunc func() int64

// UVCStream turns a sequence of isochronous payload buffers into complete
// video frames. One UVCStream exists per camera sensor.
type UVCStream struct {
	mu sync.Mutex

	pool    *FramePool
	profile SensorProfile
	onFrame FrameCallback
	now     NowFunc
	logger  *log.Logger

	curFrame        *VideoFrame
	frameIDParity   uint8
	haveParity      bool
	curPTS          uint32
	havePTS         bool
	frameCollected  int
	frameSize       int
	skipFrame       bool

	videoRunning    bool
	activeTransfers int
}

// NewUVCStream constructs a stream assembler over the given frame pool.
func NewUVCStream(pool *FramePool, profile SensorProfile, onFrame FrameCallback, now NowFunc, logger *log.Logger) *UVCStream {
	if now == nil {
		now = func() int64 { return time.Now().UnixNano() }
	}
	if logger == nil {
		logger = defaultLogger
	}
	return &UVCStream{
		pool:      pool,
		profile:   profile,
		onFrame:   onFrame,
		now:       now,
		logger:    logger,
		frameSize: profile.Stride() * profile.Height,
	}
}

// Feed processes one isochronous payload through the frame-assembly
// algorithm (steps 1-7 below). USBTransport calls it from its single read
// goroutine, so calls for one stream arrive serialized; Feed also holds the
// stream lock for its whole duration.
func (s *UVCStream) Feed(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: discard empty or header-only payloads.
	if len(payload) <= payloadHeaderLen {
		return
	}

	hdr, ok := parseUVCPayloadHeader(payload)
	if !ok {
		return
	}

	// Step 2: reject malformed or error-flagged headers.
	if hdr.HeaderLength != payloadHeaderLen || hdr.errorBit() {
		return
	}

	// Step 3: mid-frame PTS change.
	if hdr.ptsPresent() {
		if s.frameCollected > 0 && s.havePTS && hdr.PresentationTS != s.curPTS {
			s.logPTSJump(hdr.PresentationTS)
		}
		s.curPTS = hdr.PresentationTS
		s.havePTS = true
	}

	// Step 4: frame-id parity toggle starts a new camera frame.
	parity := uint8(0)
	if hdr.frameIDBit() {
		parity = 1
	}
	if !s.haveParity || parity != s.frameIDParity {
		s.startNewFrame(parity)
	}

	body := payload[payloadHeaderLen:]

	// Step 5: append payload body, with overflow detection.
	if !s.skipFrame && s.curFrame != nil {
		if s.frameCollected+len(body) > s.frameSize {
			s.logger.Printf("uvc: payload overflow, dropping frame (collected=%d add=%d size=%d)",
				s.frameCollected, len(body), s.frameSize)
			s.dropCurrentFrame()
		} else {
			copy(s.curFrame.Data[s.frameCollected:], body)
			s.frameCollected += len(body)
		}
	}

	// Step 6: frame complete.
	if !s.skipFrame && s.curFrame != nil && s.frameCollected == s.frameSize {
		frame := s.curFrame
		s.curFrame = nil
		s.frameCollected = 0
		if s.onFrame != nil {
			s.onFrame(frame)
		} else {
			frame.Release()
		}
	}

	// Step 7: EOF always resets frame_collected defensively.
	if hdr.eofBit() {
		s.frameCollected = 0
	}
}

func (s *UVCStream) startNewFrame(parity uint8) {
	if s.frameCollected > 0 {
		s.logger.Printf("uvc: short frame dropped (collected=%d size=%d)", s.frameCollected, s.frameSize)
		s.dropCurrentFrame()
	}

	s.haveParity = true
	s.frameIDParity = parity
	s.frameCollected = 0

	frame, ok := s.pool.Acquire()
	if !ok {
		s.skipFrame = true
		s.curFrame = nil
		return
	}

	s.skipFrame = false
	frame.PTS = s.curPTS
	frame.StartTS = s.now()
	frame.Stride = s.profile.Stride()
	frame.Width = s.profile.Width
	frame.Height = s.profile.Height
	frame.FrameID = parity
	s.curFrame = frame
}

func (s *UVCStream) dropCurrentFrame() {
	if s.curFrame != nil {
		s.curFrame.Release()
		s.curFrame = nil
	}
	s.frameCollected = 0
	s.skipFrame = false
}

// logPTSJump reproduces a bug-compatible (suspect-precedence) log
// expression verbatim: (pts - cur_pts * 1000) / clockFrequency. This does
// not compute "milliseconds lost" correctly, but is kept exactly as-is
// absent a deliberate, recorded fix (see DESIGN.md).
func (s *UVCStream) logPTSJump(newPTS uint32) {
	clock := s.profile.ClockFrequency
	if clock == 0 {
		clock = 1
	}
	lost := (int64(newPTS) - int64(s.curPTS)*1000) / int64(clock)
	s.logger.Printf("uvc: mid-frame PTS change %d -> %d (~%dms lost)", s.curPTS, newPTS, lost)
}

// SetRunning marks the stream as actively/inactively streaming. Shutdown is
// cooperative: the caller sets running=false, then waits (outside this
// call) for ActiveTransfers to reach 0 via TransferCompleted.
func (s *UVCStream) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoRunning = running
}

func (s *UVCStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoRunning
}

// TransferSubmitted/TransferCompleted track the isochronous transfer
// lifecycle so active_transfers reaches 0 after shutdown.
func (s *UVCStream) TransferSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTransfers++
}

func (s *UVCStream) TransferCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTransfers > 0 {
		s.activeTransfers--
	}
}

func (s *UVCStream) ActiveTransfers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTransfers
}

// SetLogger overrides the logger used for overflow/drop/PTS-jump
// diagnostics. Passing nil restores defaultLogger.
func (s *UVCStream) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = defaultLogger
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// FrameCollected reports bytes collected for the in-progress frame (tests).
func (s *UVCStream) FrameCollected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCollected
}
