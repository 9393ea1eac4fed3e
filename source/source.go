// Package source - Frame sources: a single still image, a video file or a live camera.
//
// A Source is opened once, read until Next returns io.EOF or an error, and closed once.
// Sources are not restartable; create a new one to read the input again.
package source

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
)

// Source produces frames in order.
//
// Implementations guarantee:
//   - Open acquires the underlying file or device and may be called once.
//   - Next returns io.EOF at end of stream and keeps returning it.
//   - Close releases the device/file and every frame buffer; it is idempotent.
//   - A returned Frame is valid until the next call to Next or Close.
type Source interface {
	fmt.Stringer
	Open() error
	Next() (frame.Frame, error)
	Close() error
}

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// lifecycle enforces open-once/close-once for a source. Sources are owned by a single
// run, so it is not synchronised.
type lifecycle struct {
	state state
}

func (l *lifecycle) open(name fmt.Stringer) error {
	switch l.state {
	case stateOpen:
		return errors.Errorf("%s is already open", name)
	case stateClosed:
		return errors.Errorf("%s is closed and cannot be reopened", name)
	}
	return nil
}

func (l *lifecycle) opened() {
	l.state = stateOpen
}

func (l *lifecycle) ready(name fmt.Stringer) error {
	if l.state != stateOpen {
		return errors.Errorf("%s is not open", name)
	}
	return nil
}

// close reports whether this call moved the source to closed.
func (l *lifecycle) close() bool {
	if l.state == stateClosed {
		return false
	}
	l.state = stateClosed
	return true
}

// checkFile rejects missing, unreadable and zero-byte inputs before handing them to a
// decoder, so an empty upload is reported as unreadable instead of as an empty stream.
func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return failure.Wrapf(failure.ErrUnreadableInput, "stat %s: %v", path, err)
	}
	if info.IsDir() {
		return failure.Wrapf(failure.ErrUnreadableInput, "%s is a directory", path)
	}
	if info.Size() == 0 {
		return failure.Wrapf(failure.ErrUnreadableInput, "%s is empty", path)
	}
	return nil
}
