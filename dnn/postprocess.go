package dnn

import (
	"image"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/detection"
)

// YOLO output rows are [cx, cy, w, h, objectness, class scores...] with coordinates
// normalised to the input image.
const scoreOffset = 5

// decodeRows turns one YOLO output layer into candidate detections scaled to a
// width x height frame. Rows whose best class score is below the threshold are dropped.
// Darknet layers arrive as rows x values; ONNX exports as [1, rows, values].
func decodeRows(out gocv.Mat, width, height int, confidenceThreshold float32) ([]detection.Detection, error) {
	if out.Empty() {
		return nil, nil
	}
	if out.Type() != gocv.MatTypeCV32F {
		return nil, errors.Errorf("output layer has type %v, want float32", out.Type())
	}

	rows, release, err := rowsOf(out)
	if err != nil {
		return nil, err
	}
	defer release()

	if rows.Cols() <= scoreOffset {
		return nil, errors.Errorf("output layer has %d values per row, want more than %d", rows.Cols(), scoreOffset)
	}

	var dets []detection.Detection
	for i := 0; i < rows.Rows(); i++ {
		classID := -1
		best := float32(0)
		for j := scoreOffset; j < rows.Cols(); j++ {
			if score := rows.GetFloatAt(i, j); score > best {
				best = score
				classID = j - scoreOffset
			}
		}
		if classID < 0 || best < confidenceThreshold {
			continue
		}

		cx := rows.GetFloatAt(i, 0) * float32(width)
		cy := rows.GetFloatAt(i, 1) * float32(height)
		w := rows.GetFloatAt(i, 2) * float32(width)
		h := rows.GetFloatAt(i, 3) * float32(height)
		dets = append(dets, detection.New(classID, best, round(cx-w/2), round(cy-h/2), round(w), round(h)))
	}
	return dets, nil
}

// rowsOf views out as a 2-D rows x values Mat. release frees any header created for
// the view and leaves out untouched.
func rowsOf(out gocv.Mat) (gocv.Mat, func(), error) {
	dims := out.Size()
	switch {
	case len(dims) == 2:
		return out, func() {}, nil
	case len(dims) == 3 && dims[0] == 1 && dims[1] < dims[2]:
		return gocv.Mat{}, nil, errors.Errorf("output layer shape %v has values on axis 1, want [1, rows, values]", dims)
	case len(dims) == 3 && dims[0] == 1:
		rows := out.Reshape(1, dims[1])
		return rows, func() { _ = rows.Close() }, nil
	}
	return gocv.Mat{}, nil, errors.Errorf("unsupported output layer shape %v", dims)
}

// suppress runs non-maximum suppression separately for each class and returns the
// survivors in descending confidence order.
func suppress(candidates []detection.Detection, confidenceThreshold, nmsThreshold float32) []detection.Detection {
	if len(candidates) == 0 {
		return nil
	}

	byClass := make(map[int][]detection.Detection)
	for _, d := range candidates {
		byClass[d.ClassID] = append(byClass[d.ClassID], d)
	}

	var kept []detection.Detection
	for _, group := range byClass {
		boxes := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, d := range group {
			boxes[i] = d.Box
			scores[i] = d.Confidence
		}
		for _, idx := range gocv.NMSBoxes(boxes, scores, confidenceThreshold, nmsThreshold) {
			kept = append(kept, group[idx])
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].ClassID < kept[j].ClassID
	})
	return kept
}

func round(v float32) int {
	return int(math.Round(float64(v)))
}
