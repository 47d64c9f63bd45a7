package rift

import (
	"fmt"
	"sync"
)

// VideoFrame is a single camera frame buffer cycling through a FramePool:
// free -> in-flight (being assembled) -> consumer -> free. Data is sized
// once at pool construction and never reallocated.
type VideoFrame struct {
	Data      []byte
	DataSize  int
	Stride    int
	Width     int
	Height    int
	PTS       uint32 // camera clock (40 MHz ticks on CV1)
	StartTS   int64  // host monotonic ns
	FrameID   uint8  // parity bit from the UVC header

	pool  *FramePool
	index int
}

// Release returns the frame to its owning pool's free list. Safe to call
// more than once; subsequent calls are no-ops.
func (f *VideoFrame) Release() {
	if f == nil || f.pool == nil {
		return
	}
	f.pool.release(f)
}

// FramePool is a fixed-count pool of pre-allocated video frame buffers.
// Acquisition never blocks: if the free list is empty, Acquire reports
// underflow and the caller is expected to mark the in-progress camera
// frame skipped rather than wait.
type FramePool struct {
	mu        sync.Mutex
	frames    []*VideoFrame
	free      []*VideoFrame
	allocated int
}

// NewFramePool pre-allocates n frames of the given fixed size/geometry.
func NewFramePool(n, stride, width, height int) (*FramePool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("rift: frame pool size must be positive, got %d", n)
	}
	if stride <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("rift: invalid frame geometry %dx%d stride=%d", width, height, stride)
	}
	size := stride * height

	p := &FramePool{
		frames: make([]*VideoFrame, 0, n),
		free:   make([]*VideoFrame, 0, n),
	}
	for i := 0; i < n; i++ {
		f := &VideoFrame{
			Data:     make([]byte, size),
			DataSize: size,
			Stride:   stride,
			Width:    width,
			Height:   height,
			pool:     p,
			index:    i,
		}
		p.frames = append(p.frames, f)
		p.free = append(p.free, f)
	}
	p.allocated = n
	return p, nil
}

// Acquire pops a frame from the free list. The second return value is
// false on underflow — the caller must not treat a nil/false result as an
// error requiring anything beyond dropping the in-progress camera frame.
func (p *FramePool) Acquire() (*VideoFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	f := p.free[n-1]
	p.free = p.free[:n-1]
	f.PTS = 0
	f.StartTS = 0
	f.FrameID = 0
	return f, true
}

func (p *FramePool) release(f *VideoFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.free {
		if existing == f {
			return // already free; release is idempotent
		}
	}
	p.free = append(p.free, f)
}

// NumFree reports the current free-list length (n_free <= n_allocated always).
func (p *FramePool) NumFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// NumAllocated reports the fixed pool size.
func (p *FramePool) NumAllocated() int {
	return p.allocated
}
