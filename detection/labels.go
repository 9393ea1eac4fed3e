package detection

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/failure"
)

// Labels is the class label table: the name at index i belongs to class id i.
type Labels []string

// LoadLabels reads a class label table from a text file with one class name per line.
//
// Surrounding whitespace is trimmed from every line and the line order defines the class
// ids. A trailing newline does not add an entry.
//
// Arguments:
//   - path: Path to the labels file.
//
// Returns:
//   - Labels: The loaded table.
//   - error: An error if the file cannot be read or holds no names.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open labels file %s", path)
	}
	defer f.Close()

	var labels Labels
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read labels file %s", path)
	}

	// Drop blank lines at the end of the file; blank lines in the middle keep their slot.
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("labels file %s has no class names", path)
	}

	return labels, nil
}

// Name returns the class name for a class id.
//
// An id outside the table means the detector and the labels file do not belong
// together, which is reported as failure.ErrDetectorContractViolation.
func (l Labels) Name(classID int) (string, error) {
	if classID < 0 || classID >= len(l) {
		return "", failure.Wrapf(failure.ErrDetectorContractViolation,
			"class id %d out of range for %d labels", classID, len(l))
	}
	return l[classID], nil
}
