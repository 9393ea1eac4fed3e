package source

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
)

// DefaultCameraIndex is the capture device used when none is configured.
const DefaultCameraIndex = 0

// CameraOptions requests a capture format from the device. Zero values leave the
// device default in place; devices may ignore requests they cannot honour.
type CameraOptions struct {
	Width  int
	Height int
	FPS    float64
}

// Camera is a source reading from a live capture device.
type Camera struct {
	index   int
	options CameraOptions
	capture *gocv.VideoCapture
	buf     gocv.Mat
	seq     uint64
	failed  error
	lifecycle
}

// NewCamera creates an unopened camera source for a device index.
func NewCamera(index int, options CameraOptions) *Camera {
	return &Camera{index: index, options: options}
}

// Index returns the capture device index.
func (s *Camera) Index() int {
	return s.index
}

func (s *Camera) String() string {
	return fmt.Sprintf("camera source %d", s.index)
}

// Open opens the capture device. An unavailable device fails with
// failure.ErrDeviceReadFailure.
func (s *Camera) Open() error {
	if err := s.lifecycle.open(s); err != nil {
		return err
	}

	capture, err := gocv.VideoCaptureDevice(s.index)
	if err != nil {
		return failure.Wrapf(failure.ErrDeviceReadFailure, "open camera %d: %v", s.index, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return failure.Wrapf(failure.ErrDeviceReadFailure, "open camera %d", s.index)
	}

	if s.options.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.options.Width))
	}
	if s.options.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.options.Height))
	}
	if s.options.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, s.options.FPS)
	}

	s.capture = capture
	s.buf = gocv.NewMat()
	s.opened()
	return nil
}

// Next blocks until the device delivers a frame. A failed or empty read terminates the
// source: it and every later call return failure.ErrDeviceReadFailure.
func (s *Camera) Next() (frame.Frame, error) {
	if err := s.ready(s); err != nil {
		return frame.Frame{}, err
	}
	if s.failed != nil {
		return frame.Frame{}, s.failed
	}
	if ok := s.capture.Read(&s.buf); !ok || s.buf.Empty() {
		s.failed = failure.Wrapf(failure.ErrDeviceReadFailure, "grab frame %d from camera %d", s.seq+1, s.index)
		return frame.Frame{}, s.failed
	}
	s.seq++
	return frame.New(s.buf, s.seq), nil
}

// Close releases the device and the frame buffer.
func (s *Camera) Close() error {
	if !s.lifecycle.close() {
		return nil
	}
	return closeCapture(s.capture, s.buf)
}

func closeCapture(capture *gocv.VideoCapture, buf gocv.Mat) error {
	var err error
	if capture != nil {
		err = multierr.Append(err, errors.Wrap(capture.Close(), "close capture"))
	}
	if buf.Ptr() != nil {
		err = multierr.Append(err, errors.Wrap(buf.Close(), "close frame buffer"))
	}
	return err
}
