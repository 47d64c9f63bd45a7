//go:build cgo
// +build cgo

package rift

import (
	"runtime"
	"testing"
	"time"
)

func testFrame(t *testing.T) *VideoFrame {
	t.Helper()
	pool, err := NewFramePool(1, 640, 640, 480)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	f, ok := pool.Acquire()
	if !ok {
		t.Fatal("expected a free frame")
	}
	return f
}

func TestNewPreviewWindow(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	preview := NewPreviewWindow("Test Window")
	if preview == nil {
		t.Fatal("NewPreviewWindow returned nil")
	}
	defer preview.Close()
}

func TestPreviewWindow_Show(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	preview := NewPreviewWindow("Test Window")
	defer preview.Close()

	// This should not panic.
	preview.Show(testFrame(t))

	time.Sleep(50 * time.Millisecond)
}

func TestPreviewWindow_Close(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	preview := NewPreviewWindow("Test Window")

	if err := preview.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	// Second close should be safe (once.Do).
	if err := preview.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}
}

func TestPreviewWindow_ShowMultiple(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Skipping GUI test on macOS: NSWindow requires main thread")
	}
	preview := NewPreviewWindow("Test Window")
	defer preview.Close()

	pool, err := NewFramePool(5, 640, 640, 480)
	if err != nil {
		t.Fatalf("NewFramePool: %v", err)
	}
	for i := 0; i < 5; i++ {
		f, ok := pool.Acquire()
		if !ok {
			t.Fatal("expected a free frame")
		}
		preview.Show(f)
		time.Sleep(10 * time.Millisecond)
	}
}
