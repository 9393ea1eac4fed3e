package source

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
)

// Image is a source that yields one decoded still image.
type Image struct {
	path string
	mat  gocv.Mat
	sent bool
	lifecycle
}

// NewImage creates an unopened still-image source.
func NewImage(path string) *Image {
	return &Image{path: path}
}

// Path returns the image path.
func (s *Image) Path() string {
	return s.path
}

func (s *Image) String() string {
	return fmt.Sprintf("image source %s", s.path)
}

// Open decodes the image. Missing, empty and undecodable files fail with
// failure.ErrUnreadableInput.
func (s *Image) Open() error {
	if err := s.lifecycle.open(s); err != nil {
		return err
	}
	if err := checkFile(s.path); err != nil {
		return err
	}

	mat := gocv.IMRead(s.path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return failure.Wrapf(failure.ErrUnreadableInput, "decode image %s", s.path)
	}
	s.mat = mat
	s.opened()
	return nil
}

// Next returns the image on the first call and io.EOF afterwards.
func (s *Image) Next() (frame.Frame, error) {
	if err := s.ready(s); err != nil {
		return frame.Frame{}, err
	}
	if s.sent {
		return frame.Frame{}, io.EOF
	}
	s.sent = true
	return frame.New(s.mat, 1), nil
}

// Close releases the decoded image.
func (s *Image) Close() error {
	if !s.lifecycle.close() {
		return nil
	}
	if s.mat.Ptr() != nil {
		return s.mat.Close()
	}
	return nil
}
