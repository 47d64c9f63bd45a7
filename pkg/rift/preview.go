//go:build cgo
// +build cgo

package rift

import (
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// PreviewWindow is a debug window that renders assembled constellation
// camera frames. OpenCV UI functions must run on a dedicated, locked OS
// thread on Linux/X11, so the window owns its own goroutine.
type PreviewWindow struct {
	window   *gocv.Window
	frameCh  chan *VideoFrame
	closeCh  chan struct{}
	doneCh   chan struct{}
	once     sync.Once
	initDone chan struct{}
}

// NewPreviewWindow creates a new preview window with the given title.
func NewPreviewWindow(title string) *PreviewWindow {
	p := &PreviewWindow{
		frameCh:  make(chan *VideoFrame, 1),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		initDone: make(chan struct{}),
	}

	go p.previewLoop(title)
	<-p.initDone

	return p
}

// previewLoop runs the OpenCV UI loop on a dedicated OS thread.
func (p *PreviewWindow) previewLoop(title string) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.window = gocv.NewWindow(title)
	close(p.initDone)

	for {
		select {
		case frame := <-p.frameCh:
			p.showFrame(frame)

		case <-p.closeCh:
			if p.window != nil {
				p.window.Close()
			}
			close(p.doneCh)
			return
		}
	}
}

// showFrame wraps a VideoFrame's grayscale buffer (stride == width, 8
// bits/pixel per the sensor profile tables) as a gocv.Mat and displays it.
// The frame is released back to its pool once drawn.
func (p *PreviewWindow) showFrame(frame *VideoFrame) {
	defer frame.Release()

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Stride, gocv.MatTypeCV8UC1, frame.Data)
	if err != nil {
		return
	}
	defer mat.Close()

	p.window.IMShow(mat)
	p.window.WaitKey(1)
}

// Show enqueues a frame for display. Takes ownership of the frame (it will
// be released after being drawn, or immediately if the preview is too slow
// to keep up). Non-blocking: drops the frame rather than waiting.
func (p *PreviewWindow) Show(frame *VideoFrame) {
	if frame == nil {
		return
	}
	select {
	case p.frameCh <- frame:
	default:
		frame.Release() // drop frame if preview is slow
	}
}

// Close closes the preview window and releases resources.
func (p *PreviewWindow) Close() error {
	p.once.Do(func() {
		close(p.closeCh)
		<-p.doneCh
	})
	return nil
}
