package sink

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/frame"
)

// Display forwards frames to a Surface. The surface belongs to the caller, so closing
// the sink leaves it untouched.
type Display struct {
	surface Surface
}

// NewDisplay creates a display sink over a surface.
func NewDisplay(surface Surface) *Display {
	return &Display{surface: surface}
}

func (d *Display) String() string {
	return "display sink"
}

// Open checks that a surface is attached.
func (d *Display) Open() error {
	if d.surface == nil {
		return errors.New("display sink has no surface")
	}
	return nil
}

// Emit shows the frame.
func (d *Display) Emit(f frame.Frame) error {
	if err := d.surface.Show(f.Mat); err != nil {
		return errors.Wrapf(err, "show frame %d", f.Seq)
	}
	return nil
}

// Close does nothing.
func (d *Display) Close() error {
	return nil
}
