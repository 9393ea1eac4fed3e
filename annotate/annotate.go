// Package annotate - Draws detection boxes and labels onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/frame"
)

const (
	boxThickness  = 2
	textThickness = 1
	textScale     = 0.5
	// labelOffset is how far above the box's top edge the label baseline sits.
	labelOffset = 10
)

// Annotator overlays detections on frames using a class label table and the pipeline
// palette. It holds no per-frame state and is safe to share between runs.
type Annotator struct {
	labels   detection.Labels
	pipeline config.Pipeline
}

// New creates an annotator.
//
// Arguments:
//   - labels: The class label table detections are named from.
//   - pipeline: The thresholds passed to the detector and the palette boxes are drawn in.
//
// Returns:
//   - *Annotator: The annotator.
//   - error: An error if the label table is empty or the pipeline config is invalid.
func New(labels detection.Labels, pipeline config.Pipeline) (*Annotator, error) {
	if len(labels) == 0 {
		return nil, errors.New("annotator requires a non-empty label table")
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return &Annotator{labels: labels, pipeline: pipeline}, nil
}

// Color returns the palette colour for a class id. Ids wrap around the palette, so there
// may be more classes than colours.
func (a *Annotator) Color(classID int) color.RGBA {
	n := len(a.pipeline.Palette)
	return a.pipeline.Palette[((classID%n)+n)%n]
}

// Label returns the overlay text for a detection, e.g. "car :  0.87".
//
// The confidence keeps a leading space where a sign would go, so labels line up
// whatever the score.
func (a *Annotator) Label(d detection.Detection) (string, error) {
	name, err := a.labels.Name(d.ClassID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s : % .2f", name, d.Confidence), nil
}

// LabelOrigin returns where the label text starts for a box. The point is not clamped:
// boxes touching the top edge get an origin above the frame and OpenCV clips the text.
func LabelOrigin(box image.Rectangle) image.Point {
	return image.Pt(box.Min.X, box.Min.Y-labelOffset)
}

// Annotate draws every detection into img in place, in the order given.
//
// All class ids are checked before anything is drawn, so a detector/label mismatch
// leaves the frame untouched.
func (a *Annotator) Annotate(img *gocv.Mat, dets []detection.Detection) error {
	labels := make([]string, len(dets))
	for i, d := range dets {
		label, err := a.Label(d)
		if err != nil {
			return err
		}
		labels[i] = label
	}

	for i, d := range dets {
		c := a.Color(d.ClassID)
		gocv.Rectangle(img, d.Box, c, boxThickness)
		gocv.PutText(img, labels[i], LabelOrigin(d.Box), gocv.FontHersheyComplex, textScale, c, textThickness)
	}
	return nil
}

// DetectAndDraw runs the detector on a frame with the configured thresholds and draws
// the results onto the frame.
//
// Arguments:
//   - det: The detector to run.
//   - f: The frame to detect on and annotate.
//
// Returns:
//   - []detection.Detection: The detections, in detector order.
//   - error: The detector's error, or failure.ErrDetectorContractViolation when a class id
//     has no label.
func (a *Annotator) DetectAndDraw(det detection.Detector, f frame.Frame) ([]detection.Detection, error) {
	dets, err := det.Detect(f.Mat, a.pipeline.ConfidenceThreshold, a.pipeline.NMSThreshold)
	if err != nil {
		return nil, errors.Wrapf(err, "detect frame %d", f.Seq)
	}
	if err := a.Annotate(&f.Mat, dets); err != nil {
		return dets, errors.Wrapf(err, "annotate frame %d", f.Seq)
	}
	return dets, nil
}
