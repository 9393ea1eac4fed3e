// Package sink - Destinations for annotated frames: an interactive display, a video file,
// or several of them at once.
package sink

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/frame"
)

// Sink consumes annotated frames.
//
// Open is called once before the first Emit. Close is idempotent and releases whatever
// Open acquired. A sink must not retain a frame's Mat after Emit returns.
type Sink interface {
	fmt.Stringer
	Open() error
	Emit(f frame.Frame) error
	Close() error
}

// Surface is a place frames can be shown, such as a desktop window or a browser preview.
type Surface interface {
	Show(img gocv.Mat) error
}

// SurfaceFunc adapts a function to a Surface.
type SurfaceFunc func(img gocv.Mat) error

// Show calls f(img).
func (f SurfaceFunc) Show(img gocv.Mat) error {
	return f(img)
}
