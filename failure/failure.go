// Package failure - Error taxonomy shared by sources, sinks, the annotator and the pipeline runner.
//
// Every error that ends a run wraps exactly one of the sentinels below so callers can
// branch with errors.Is regardless of how much context was added on the way up.
package failure

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnreadableInput is returned when an image or video file cannot be decoded.
	ErrUnreadableInput = errors.New("unreadable input")
	// ErrDeviceReadFailure is returned when a camera is unavailable or a read fails.
	ErrDeviceReadFailure = errors.New("device read failure")
	// ErrEncoderWriteFailure is returned when the recording writer cannot accept a frame.
	ErrEncoderWriteFailure = errors.New("encoder write failure")
	// ErrDirectoryCreateFailure is returned when an output directory cannot be prepared.
	ErrDirectoryCreateFailure = errors.New("directory create failure")
	// ErrDetectorContractViolation is returned when a detector reports a class id that has
	// no entry in the class label table.
	ErrDetectorContractViolation = errors.New("detector contract violation")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnreadableInput, "unreadable_input"},
	{ErrDeviceReadFailure, "device_read_failure"},
	{ErrEncoderWriteFailure, "encoder_write_failure"},
	{ErrDirectoryCreateFailure, "directory_create_failure"},
	{ErrDetectorContractViolation, "detector_contract_violation"},
}

// Wrapf annotates a sentinel with a formatted message and a stack trace.
func Wrapf(sentinel error, format string, args ...interface{}) error {
	return errors.Wrapf(sentinel, format, args...)
}

// Kind returns the taxonomy name of err, "unknown" for errors outside the taxonomy and
// the empty string for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
