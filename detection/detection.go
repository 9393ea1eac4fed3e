// Package detection - Detection results and the detector capability consumed by the pipeline.
package detection

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detection represents a single detected object.
type Detection struct {
	// ClassID indexes the class label table.
	ClassID int
	// Confidence is the detector score in [0, 1].
	Confidence float32
	// Box is the object bounding box in frame pixel coordinates.
	Box image.Rectangle
}

// New creates a detection from a box given as origin plus size, the layout object
// detectors usually report.
//
// Arguments:
//   - classID: The class index reported by the detector.
//   - confidence: The detector score.
//   - x, y: The top-left corner of the box.
//   - width, height: The box size in pixels.
//
// Returns:
//   - The detection with Box spanning (x, y)-(x+width, y+height).
func New(classID int, confidence float32, x, y, width, height int) Detection {
	return Detection{
		ClassID:    classID,
		Confidence: confidence,
		Box:        image.Rect(x, y, x+width, y+height),
	}
}

func (d Detection) String() string {
	return fmt.Sprintf("class %d (confidence %.2f): %v", d.ClassID, d.Confidence, d.Box)
}

// Detector is the object-detection capability the pipeline runs on every frame.
//
// Implementations return detections in their own order; callers must not reorder them.
// Class ids must be valid indexes into the class label table the detector was built for.
type Detector interface {
	Detect(img gocv.Mat, confidenceThreshold, nmsThreshold float32) ([]Detection, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(img gocv.Mat, confidenceThreshold, nmsThreshold float32) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(img gocv.Mat, confidenceThreshold, nmsThreshold float32) ([]Detection, error) {
	return f(img, confidenceThreshold, nmsThreshold)
}
