package sink

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
)

const (
	// RecordingBaseName is the file name, without extension, of every recording.
	RecordingBaseName = "recorded_live_video"
	// DefaultCodec is the FourCC used when none is configured.
	DefaultCodec = "XVID"
	// DefaultExtension is the container extension used when none is configured.
	DefaultExtension = "avi"
)

// RecordingOptions describes the encoded output.
type RecordingOptions struct {
	Width  int
	Height int
	FPS    float64
	// Codec is a four-character code, "XVID" when empty.
	Codec string
	// Extension picks the container, "avi" when empty.
	Extension string
}

// Recording encodes frames into <dir>/recorded_live_video.<ext> at a fixed size and
// frame rate. Frames of any other size are rejected rather than rescaled.
type Recording struct {
	path    string
	options RecordingOptions
	writer  *gocv.VideoWriter
	written uint64

	closeOnce sync.Once
	closeErr  error
}

// NewRecording creates an unopened recording sink writing into dir.
//
// Arguments:
//   - dir: The existing output directory.
//   - options: The frame size, frame rate and encoder.
//
// Returns:
//   - *Recording: The sink.
//   - error: An error if the size, frame rate or codec is invalid.
func NewRecording(dir string, options RecordingOptions) (*Recording, error) {
	if options.Codec == "" {
		options.Codec = DefaultCodec
	}
	if options.Extension == "" {
		options.Extension = DefaultExtension
	}
	if options.Width <= 0 || options.Height <= 0 {
		return nil, errors.Errorf("invalid recording size %dx%d", options.Width, options.Height)
	}
	if options.FPS <= 0 {
		return nil, errors.Errorf("invalid recording frame rate %v", options.FPS)
	}
	if len(options.Codec) != 4 {
		return nil, errors.Errorf("codec %q is not a four-character code", options.Codec)
	}

	return &Recording{
		path:    RecordingPath(dir, options.Extension),
		options: options,
	}, nil
}

// RecordingPath returns the output file for a directory and container extension.
func RecordingPath(dir, ext string) string {
	return filepath.Join(dir, RecordingBaseName+"."+ext)
}

// Path returns the output file.
func (r *Recording) Path() string {
	return r.path
}

// Written returns the number of frames encoded so far.
func (r *Recording) Written() uint64 {
	return r.written
}

func (r *Recording) String() string {
	return fmt.Sprintf("recording sink %s", r.path)
}

// Open creates the output file. Failures are failure.ErrEncoderWriteFailure.
func (r *Recording) Open() error {
	if r.writer != nil {
		return errors.Errorf("%s is already open", r)
	}

	writer, err := gocv.VideoWriterFile(r.path, r.options.Codec, r.options.FPS, r.options.Width, r.options.Height, true)
	if err != nil {
		return failure.Wrapf(failure.ErrEncoderWriteFailure, "open %s: %v", r.path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return failure.Wrapf(failure.ErrEncoderWriteFailure, "open %s with codec %s", r.path, r.options.Codec)
	}
	r.writer = writer
	return nil
}

// Emit encodes one frame. A frame whose size differs from the configured size, or a
// failed write, is failure.ErrEncoderWriteFailure.
func (r *Recording) Emit(f frame.Frame) error {
	if r.writer == nil {
		return failure.Wrapf(failure.ErrEncoderWriteFailure, "%s is not open", r)
	}

	want := image.Pt(r.options.Width, r.options.Height)
	if got := f.Size(); got != want {
		return failure.Wrapf(failure.ErrEncoderWriteFailure,
			"frame %d is %dx%d, recording expects %dx%d", f.Seq, got.X, got.Y, want.X, want.Y)
	}
	if err := r.writer.Write(f.Mat); err != nil {
		return failure.Wrapf(failure.ErrEncoderWriteFailure, "write frame %d: %v", f.Seq, err)
	}
	r.written++
	return nil
}

// Close finalises the file. Only the first call does any work.
func (r *Recording) Close() error {
	r.closeOnce.Do(func() {
		if r.writer != nil {
			r.closeErr = errors.Wrapf(r.writer.Close(), "close %s", r.path)
		}
	})
	return r.closeErr
}
