// Package display - Surfaces annotated frames are shown on: a desktop window or an MJPEG
// preview served over HTTP.
package display

import (
	"sync"

	"gocv.io/x/gocv"
)

const (
	keyEscape = 27
	keyQuit   = 'q'
)

// Window shows frames in a desktop window.
//
// @example
// w := display.NewWindow("Object Detection", cancel)
// defer w.Close()
// snk := sink.NewDisplay(w)
type Window struct {
	window *gocv.Window
	onQuit func()

	closeOnce sync.Once
}

// NewWindow opens a window.
//
// Arguments:
//   - title: The window title.
//   - onQuit: Called when Esc or q is pressed in the window; may be nil.
//
// Returns:
//   - *Window: The window, to be closed by the caller.
func NewWindow(title string, onQuit func()) *Window {
	return &Window{
		window: gocv.NewWindow(title),
		onQuit: onQuit,
	}
}

// Show draws the frame and pumps the window's event loop for 1ms.
func (w *Window) Show(img gocv.Mat) error {
	w.window.IMShow(img)
	switch w.window.WaitKey(1) {
	case keyEscape, keyQuit:
		if w.onQuit != nil {
			w.onQuit()
		}
	}
	return nil
}

// WaitKey blocks until a key is pressed in the window.
func (w *Window) WaitKey() int {
	return w.window.WaitKey(0)
}

// Close destroys the window.
func (w *Window) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.window.Close()
	})
	return err
}
