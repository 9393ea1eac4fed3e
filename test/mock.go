// Package test - Deterministic frames, media files and detectors for exercising the pipeline
// without a camera or a trained network.
package test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/detection"
)

// MockFrameGenerator creates deterministic BGR test frames.
//
// @example
// gen := NewMockFrameGenerator(640, 480)
// frame := gen.GenerateStaticFrame()
// defer frame.Close()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
//
// @example
// gen := NewMockFrameGenerator(1920, 1080)
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{
		width:  width,
		height: height,
	}
}

// GenerateStaticFrame creates a mid-gray 3-channel frame.
//
// Returns:
// - A CV8UC3 Mat owned by the caller.
func (g *MockFrameGenerator) GenerateStaticFrame() gocv.Mat {
	frame := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(128, 128, 128, 0))
	return frame
}

// GenerateObjectFrame creates a frame with a filled white square standing in for an object.
//
// Arguments:
// - x: X coordinate of the square.
// - y: Y coordinate of the square.
// - size: Side of the square in pixels.
//
// Returns:
// - A CV8UC3 Mat owned by the caller.
//
// @example
// frame := gen.GenerateObjectFrame(100, 100, 50)
// defer frame.Close()
func (g *MockFrameGenerator) GenerateObjectFrame(x, y, size int) gocv.Mat {
	frame := g.GenerateStaticFrame()
	rect := image.Rect(x, y, x+size, y+size)
	gocv.Rectangle(&frame, rect, color.RGBA{255, 255, 255, 0}, -1)
	return frame
}

// WriteImage encodes a generated frame to an image file in dir.
//
// Arguments:
// - dir: Directory to write into.
// - name: File name; the extension picks the encoder.
//
// Returns:
// - The path of the written file.
func (g *MockFrameGenerator) WriteImage(dir, name string) (string, error) {
	frame := g.GenerateObjectFrame(g.width/4, g.height/4, min(g.width, g.height)/4)
	defer frame.Close()

	path := filepath.Join(dir, name)
	if !gocv.IMWrite(path, frame) {
		return "", errors.Errorf("write image %s", path)
	}
	return path, nil
}

// WriteVideo encodes count generated frames to an MJPG AVI file in dir.
//
// Arguments:
// - dir: Directory to write into.
// - name: File name, normally ending in ".avi".
// - count: Number of frames to write.
//
// Returns:
// - The path of the written file.
func (g *MockFrameGenerator) WriteVideo(dir, name string, count int) (string, error) {
	path := filepath.Join(dir, name)
	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, g.width, g.height, true)
	if err != nil {
		return "", errors.Wrapf(err, "open video writer %s", path)
	}
	defer writer.Close()

	for i := 0; i < count; i++ {
		frame := g.GenerateObjectFrame(i*4, i*4, 32)
		err := writer.Write(frame)
		frame.Close()
		if err != nil {
			return "", errors.Wrapf(err, "write frame %d", i)
		}
	}
	return path, nil
}

// WriteEmptyFile creates a zero-byte file in dir.
func WriteEmptyFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

// ScriptedDetector replays a fixed list of detections per call and records the
// thresholds it was called with.
type ScriptedDetector struct {
	// Script holds the detections returned by successive calls; calls past the end
	// return no detections.
	Script [][]detection.Detection
	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls []Call
}

// Call records one Detect invocation.
type Call struct {
	Size                image.Point
	ConfidenceThreshold float32
	NMSThreshold        float32
}

// Detect implements detection.Detector.
func (d *ScriptedDetector) Detect(img gocv.Mat, conf, nms float32) ([]detection.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.calls)
	d.calls = append(d.calls, Call{
		Size:                image.Pt(img.Cols(), img.Rows()),
		ConfidenceThreshold: conf,
		NMSThreshold:        nms,
	})
	if d.Err != nil {
		return nil, d.Err
	}
	if n >= len(d.Script) {
		return nil, nil
	}
	return d.Script[n], nil
}

// Calls returns the recorded invocations.
func (d *ScriptedDetector) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}
