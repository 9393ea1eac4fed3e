package source

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
)

// Video is a source that decodes a video container frame by frame.
type Video struct {
	path      string
	capture   *gocv.VideoCapture
	buf       gocv.Mat
	seq       uint64
	exhausted bool
	lifecycle
}

// NewVideo creates an unopened video-file source.
func NewVideo(path string) *Video {
	return &Video{path: path}
}

// Path returns the video path.
func (s *Video) Path() string {
	return s.path
}

func (s *Video) String() string {
	return fmt.Sprintf("video source %s", s.path)
}

// Open opens the container. Missing, empty and undecodable files fail with
// failure.ErrUnreadableInput.
func (s *Video) Open() error {
	if err := s.lifecycle.open(s); err != nil {
		return err
	}
	if err := checkFile(s.path); err != nil {
		return err
	}

	capture, err := gocv.VideoCaptureFile(s.path)
	if err != nil {
		return failure.Wrapf(failure.ErrUnreadableInput, "open video %s: %v", s.path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return failure.Wrapf(failure.ErrUnreadableInput, "open video %s", s.path)
	}

	s.capture = capture
	s.buf = gocv.NewMat()
	s.opened()
	return nil
}

// Next decodes the next frame into the source's buffer. Once the container is exhausted
// it returns io.EOF on every call.
func (s *Video) Next() (frame.Frame, error) {
	if err := s.ready(s); err != nil {
		return frame.Frame{}, err
	}
	if s.exhausted {
		return frame.Frame{}, io.EOF
	}
	if ok := s.capture.Read(&s.buf); !ok || s.buf.Empty() {
		s.exhausted = true
		return frame.Frame{}, io.EOF
	}
	s.seq++
	return frame.New(s.buf, s.seq), nil
}

// Close releases the container and the frame buffer.
func (s *Video) Close() error {
	if !s.lifecycle.close() {
		return nil
	}
	return closeCapture(s.capture, s.buf)
}
