package dnn

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/detection"
)

// yoloOutput builds a fake output layer with three classes.
func yoloOutput(t *testing.T, rows [][]float32) gocv.Mat {
	t.Helper()
	out := gocv.NewMatWithSize(len(rows), 8, gocv.MatTypeCV32F)
	for i, row := range rows {
		require.Len(t, row, 8)
		for j, v := range row {
			out.SetFloatAt(i, j, v)
		}
	}
	return out
}

func TestDecodeRows(t *testing.T) {
	out := yoloOutput(t, [][]float32{
		// class 1 at the centre, 0.9
		{0.5, 0.5, 0.2, 0.4, 0.95, 0.1, 0.9, 0.0},
		// below threshold
		{0.2, 0.2, 0.1, 0.1, 0.5, 0.3, 0.2, 0.1},
		// class 2, 0.6
		{0.25, 0.25, 0.1, 0.1, 0.7, 0.0, 0.0, 0.6},
	})
	defer out.Close()

	dets, err := decodeRows(out, 200, 100, 0.4)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, 1, dets[0].ClassID)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.Equal(t, image.Rect(80, 30, 120, 70), dets[0].Box)

	assert.Equal(t, 2, dets[1].ClassID)
	assert.Equal(t, image.Rect(40, 20, 60, 30), dets[1].Box)
}

func TestDecodeRowsOnnxLayout(t *testing.T) {
	rows := [][]float32{
		{0.5, 0.5, 0.2, 0.4, 0.95, 0.1, 0.9, 0.0},
		{0.25, 0.25, 0.1, 0.1, 0.7, 0.0, 0.0, 0.6},
	}
	// Real exports have far more rows than values; the zero rows are never confident.
	out := gocv.NewMatWithSizes([]int{1, 10, 8}, gocv.MatTypeCV32F)
	defer out.Close()
	out.SetTo(gocv.NewScalar(0, 0, 0, 0))
	for i, row := range rows {
		for j, v := range row {
			out.SetFloatAt3(0, i, j, v)
		}
	}

	dets, err := decodeRows(out, 200, 100, 0.4)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, 1, dets[0].ClassID)
	assert.Equal(t, image.Rect(80, 30, 120, 70), dets[0].Box)
	assert.Equal(t, 2, dets[1].ClassID)
	assert.Equal(t, image.Rect(40, 20, 60, 30), dets[1].Box)
	assert.Equal(t, []int{1, 10, 8}, out.Size(), "output layer left untouched")
}

func TestDecodeRowsRejectsUnsupportedOutputs(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
		typ   gocv.MatType
	}{
		{name: "too few values per row", sizes: []int{2, 5}, typ: gocv.MatTypeCV32F},
		{name: "batch of two", sizes: []int{2, 3, 8}, typ: gocv.MatTypeCV32F},
		{name: "values on axis 1", sizes: []int{1, 8, 20}, typ: gocv.MatTypeCV32F},
		{name: "four dimensions", sizes: []int{1, 1, 3, 8}, typ: gocv.MatTypeCV32F},
		{name: "not float32", sizes: []int{3, 8}, typ: gocv.MatTypeCV8U},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := gocv.NewMatWithSizes(tt.sizes, tt.typ)
			defer out.Close()

			dets, err := decodeRows(out, 10, 10, 0)
			assert.Error(t, err)
			assert.Empty(t, dets)
		})
	}
}

func TestDecodeRowsEmptyOutput(t *testing.T) {
	out := gocv.NewMat()
	defer out.Close()

	dets, err := decodeRows(out, 10, 10, 0)
	assert.NoError(t, err)
	assert.Empty(t, dets)
}

func TestSuppress(t *testing.T) {
	candidates := []detection.Detection{
		detection.New(0, 0.6, 10, 10, 50, 50),
		detection.New(0, 0.9, 12, 12, 50, 50), // overlaps the first, wins
		detection.New(1, 0.7, 10, 10, 50, 50), // same box, other class, kept
		detection.New(0, 0.8, 200, 200, 20, 20),
	}

	got := suppress(candidates, 0.4, 0.4)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-6)
	assert.InDelta(t, 0.8, got[1].Confidence, 1e-6)
	assert.Equal(t, 1, got[2].ClassID)

	assert.Nil(t, suppress(nil, 0.4, 0.4))
}

func TestNewDetectorMissingFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDetector(Config{})
	assert.Error(t, err)

	_, err = NewDetector(Config{ModelPath: filepath.Join(dir, "missing.weights")})
	assert.Error(t, err)

	_, err = NewDetector(Config{ModelPath: "x.onnx", InputShape: image.Pt(-1, 416)})
	assert.Error(t, err)
}
