// Package mode - Maps an operating mode to the frame source and sink a run uses.
package mode

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/sink"
	"github.com/nvr-ai/go-detect/source"
)

// Mode is one of Image, Video, Live or Record.
type Mode interface {
	fmt.Stringer
	isMode()
}

// Image annotates a single still image.
type Image struct {
	Path string
}

// Video annotates every frame of a video file, or of a directory of numbered frame
// images (frame-1.jpg, frame-2.jpg, ...).
type Video struct {
	Path string
}

// Live annotates the default camera until cancelled.
type Live struct{}

// Record annotates the default camera and also encodes the annotated frames to
// <Dir>/recorded_live_video.<ext>.
type Record struct {
	Dir    string
	Width  int
	Height int
	FPS    float64
}

func (Image) isMode()  {}
func (Video) isMode()  {}
func (Live) isMode()   {}
func (Record) isMode() {}

func (m Image) String() string { return "image " + m.Path }
func (m Video) String() string { return "video " + m.Path }
func (Live) String() string    { return "live" }
func (m Record) String() string {
	return fmt.Sprintf("record %s %dx%d@%g", m.Dir, m.Width, m.Height, m.FPS)
}

// Controller builds the source and sink for a mode.
type Controller struct {
	// Surface receives every annotated frame.
	Surface sink.Surface
	// CameraIndex is the capture device for Live and Record.
	CameraIndex int
	// Camera is the capture format requested in Live mode. Record requests its own
	// recording size instead.
	Camera source.CameraOptions
	// Codec and Extension select the recording encoder and container.
	Codec     string
	Extension string
}

// Build returns an unopened source and sink for m. Nothing is opened here; the runner
// opens both when the run starts. Record creates its output directory when it is
// missing.
//
// Arguments:
//   - m: The mode to build.
//
// Returns:
//   - source.Source: The frame source.
//   - sink.Sink: The frame sink.
//   - error: failure.ErrDirectoryCreateFailure when the recording directory cannot be
//     created, or an error for invalid mode parameters.
func (c *Controller) Build(m Mode) (source.Source, sink.Sink, error) {
	if c.Surface == nil {
		return nil, nil, errors.New("mode controller requires a display surface")
	}
	display := sink.NewDisplay(c.Surface)

	switch m := m.(type) {
	case Image:
		if m.Path == "" {
			return nil, nil, errors.New("image mode requires a path")
		}
		return source.NewImage(m.Path), display, nil

	case Video:
		if m.Path == "" {
			return nil, nil, errors.New("video mode requires a path")
		}
		if info, err := os.Stat(m.Path); err == nil && info.IsDir() {
			return source.NewSequence(m.Path), display, nil
		}
		return source.NewVideo(m.Path), display, nil

	case Live:
		return source.NewCamera(c.CameraIndex, c.Camera), display, nil

	case Record:
		return c.buildRecord(m, display)
	}
	return nil, nil, errors.Errorf("unsupported mode %v", m)
}

func (c *Controller) buildRecord(m Record, display *sink.Display) (source.Source, sink.Sink, error) {
	recording, err := sink.NewRecording(m.Dir, sink.RecordingOptions{
		Width:     m.Width,
		Height:    m.Height,
		FPS:       m.FPS,
		Codec:     c.Codec,
		Extension: c.Extension,
	})
	if err != nil {
		return nil, nil, err
	}
	if m.Dir == "" {
		return nil, nil, errors.New("record mode requires a directory")
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, nil, failure.Wrapf(failure.ErrDirectoryCreateFailure, "create %s: %v", m.Dir, err)
	}

	camera := source.NewCamera(c.CameraIndex, source.CameraOptions{
		Width:  m.Width,
		Height: m.Height,
		FPS:    m.FPS,
	})
	return camera, sink.NewComposite(display, recording), nil
}
