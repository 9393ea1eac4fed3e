// Package frame - A single video frame flowing from a source through detection to the sinks.
package frame

import (
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single frame of video.
//
// The Mat is owned by the source that produced it. Video and camera sources decode every
// frame into the same buffer, so a Frame is only valid until the next call to the
// source's Next; the still-image source hands out its single decoded buffer. Annotation
// draws into the Mat in place.
type Frame struct {
	// Mat holds the BGR pixel buffer.
	Mat gocv.Mat
	// Seq is the 1-based position of the frame in its source.
	Seq uint64
	// Timestamp is when the frame was acquired.
	Timestamp time.Time
}

// New wraps a Mat acquired now as the seq-th frame of a source.
func New(mat gocv.Mat, seq uint64) Frame {
	return Frame{
		Mat:       mat,
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

// Size returns the frame dimensions as (width, height).
func (f Frame) Size() image.Point {
	return image.Point{X: f.Mat.Cols(), Y: f.Mat.Rows()}
}

// Channels returns the number of colour channels in the frame.
func (f Frame) Channels() int {
	return f.Mat.Channels()
}

// Empty reports whether the frame holds no pixels.
func (f Frame) Empty() bool {
	return f.Mat.Empty()
}
