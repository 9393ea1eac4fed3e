package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
)

// FramePrefix is the file name prefix of numbered frame images, as in frame-0001.jpg.
const FramePrefix = "frame-"

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// Sequence is a source that plays a directory of numbered still images
// (frame-1.jpg, frame-2.jpg, ...) as a video, in frame-number order.
type Sequence struct {
	dir   string
	files []string
	next  int
	buf   gocv.Mat
	lifecycle
}

// NewSequence creates an unopened frame-directory source.
func NewSequence(dir string) *Sequence {
	return &Sequence{dir: dir}
}

// Path returns the frame directory.
func (s *Sequence) Path() string {
	return s.dir
}

func (s *Sequence) String() string {
	return fmt.Sprintf("frame sequence source %s", s.dir)
}

// Open lists the frames. A missing directory, or one without numbered frames, fails
// with failure.ErrUnreadableInput.
func (s *Sequence) Open() error {
	if err := s.lifecycle.open(s); err != nil {
		return err
	}
	files, err := listFrames(s.dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return failure.Wrapf(failure.ErrUnreadableInput, "%s has no %s<n> images", s.dir, FramePrefix)
	}
	s.files = files
	s.opened()
	return nil
}

// Next decodes the next frame. A frame that cannot be decoded fails with
// failure.ErrUnreadableInput; after the last frame it returns io.EOF.
func (s *Sequence) Next() (frame.Frame, error) {
	if err := s.ready(s); err != nil {
		return frame.Frame{}, err
	}
	if s.next >= len(s.files) {
		return frame.Frame{}, io.EOF
	}

	path := s.files[s.next]
	s.next++

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return frame.Frame{}, failure.Wrapf(failure.ErrUnreadableInput, "decode frame %s", path)
	}
	if s.buf.Ptr() != nil {
		s.buf.Close()
	}
	s.buf = img
	return frame.New(s.buf, uint64(s.next)), nil
}

// Close releases the last decoded frame.
func (s *Sequence) Close() error {
	if !s.lifecycle.close() {
		return nil
	}
	if s.buf.Ptr() != nil {
		return s.buf.Close()
	}
	return nil
}

// listFrames returns the numbered frame images in dir, ordered by frame number.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, failure.Wrapf(failure.ErrUnreadableInput, "read frame directory %s: %v", dir, err)
	}

	type numbered struct {
		path string
		n    int
	}
	var frames []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !frameExtensions[ext] || !strings.HasPrefix(name, FramePrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, FramePrefix), filepath.Ext(name)))
		if err != nil {
			continue
		}
		frames = append(frames, numbered{path: filepath.Join(dir, name), n: n})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].n < frames[j].n
	})
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.path
	}
	return paths, nil
}
