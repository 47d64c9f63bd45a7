package rift

import "testing"

func TestNewFramePool(t *testing.T) {
	pool, err := NewFramePool(4, 640, 640, 480)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	if pool.NumAllocated() != 4 {
		t.Errorf("expected 4 allocated frames, got %d", pool.NumAllocated())
	}
	if pool.NumFree() != 4 {
		t.Errorf("expected 4 free frames, got %d", pool.NumFree())
	}
}

func TestNewFramePool_InvalidArgs(t *testing.T) {
	if _, err := NewFramePool(0, 640, 640, 480); err == nil {
		t.Error("expected error for non-positive frame count")
	}
	if _, err := NewFramePool(1, 0, 640, 480); err == nil {
		t.Error("expected error for zero stride")
	}
	if _, err := NewFramePool(1, 640, 0, 480); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := NewFramePool(1, 640, 640, 0); err == nil {
		t.Error("expected error for zero height")
	}
}

func TestFramePool_DataSizeInvariant(t *testing.T) {
	pool, err := NewFramePool(2, 1280, 1280, 960)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	f, ok := pool.Acquire()
	if !ok {
		t.Fatal("expected a free frame")
	}
	if f.DataSize != f.Stride*f.Height {
		t.Errorf("expected data_size == stride*height, got %d != %d*%d", f.DataSize, f.Stride, f.Height)
	}
	if len(f.Data) != f.DataSize {
		t.Errorf("expected len(Data) == DataSize, got %d != %d", len(f.Data), f.DataSize)
	}
}

// TestFramePool_Underflow checks that acquisition never blocks — once the
// free list is exhausted, Acquire reports underflow rather than waiting.
func TestFramePool_Underflow(t *testing.T) {
	pool, err := NewFramePool(2, 640, 640, 480)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}

	f1, ok := pool.Acquire()
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	f2, ok := pool.Acquire()
	if !ok {
		t.Fatal("expected second acquire to succeed")
	}
	if _, ok := pool.Acquire(); ok {
		t.Fatal("expected third acquire to report underflow")
	}
	if pool.NumFree() != 0 {
		t.Errorf("expected 0 free frames, got %d", pool.NumFree())
	}

	f1.Release()
	if pool.NumFree() != 1 {
		t.Errorf("expected 1 free frame after release, got %d", pool.NumFree())
	}
	f2.Release()
	if pool.NumFree() != 2 {
		t.Errorf("expected 2 free frames after release, got %d", pool.NumFree())
	}
	if pool.NumFree() > pool.NumAllocated() {
		t.Errorf("n_free (%d) exceeds n_allocated (%d)", pool.NumFree(), pool.NumAllocated())
	}
}

// TestFramePool_ReleaseIdempotent checks the idempotence property applied
// to the frame pool: releasing an already-free frame is a no-op, not a
// double-push.
func TestFramePool_ReleaseIdempotent(t *testing.T) {
	pool, err := NewFramePool(1, 640, 640, 480)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	f, ok := pool.Acquire()
	if !ok {
		t.Fatal("expected a free frame")
	}
	f.Release()
	f.Release()
	if pool.NumFree() != 1 {
		t.Errorf("expected 1 free frame after double release, got %d", pool.NumFree())
	}
}

func TestFramePool_AcquireResetsMetadata(t *testing.T) {
	pool, err := NewFramePool(1, 640, 640, 480)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	f, _ := pool.Acquire()
	f.PTS = 123
	f.StartTS = 456
	f.FrameID = 1
	f.Release()

	f2, ok := pool.Acquire()
	if !ok {
		t.Fatal("expected a free frame")
	}
	if f2.PTS != 0 || f2.StartTS != 0 || f2.FrameID != 0 {
		t.Errorf("expected reset metadata, got pts=%d start_ts=%d frame_id=%d", f2.PTS, f2.StartTS, f2.FrameID)
	}
}
