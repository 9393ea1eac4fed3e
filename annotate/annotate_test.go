package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
	"github.com/nvr-ai/go-detect/test"
)

var labels = detection.Labels{"person", "bicycle", "car", "motorcycle"}

func newAnnotator(t *testing.T) *Annotator {
	t.Helper()
	a, err := New(labels, config.DefaultPipeline())
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	_, err := New(nil, config.DefaultPipeline())
	assert.Error(t, err)

	bad := config.DefaultPipeline()
	bad.Palette = nil
	_, err = New(labels, bad)
	assert.Error(t, err)
}

func TestColorWrapsAroundPalette(t *testing.T) {
	a := newAnnotator(t)
	palette := config.DefaultPalette

	tests := []struct {
		classID int
		want    color.RGBA
	}{
		{classID: 0, want: palette[0]},
		{classID: 2, want: palette[2]},
		{classID: 5, want: palette[5]},
		{classID: 6, want: palette[0]},
		{classID: 79, want: palette[79%6]},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Color(tt.classID), "class %d", tt.classID)
	}
}

func TestLabel(t *testing.T) {
	a := newAnnotator(t)

	label, err := a.Label(detection.New(2, 0.87, 10, 10, 50, 50))
	require.NoError(t, err)
	assert.Equal(t, "car :  0.87", label)

	label, err = a.Label(detection.New(0, 1, 0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "person :  1.00", label)

	label, err = a.Label(detection.New(3, 0.004, 0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "motorcycle :  0.00", label)

	_, err = a.Label(detection.New(4, 0.9, 0, 0, 1, 1))
	assert.True(t, errors.Is(err, failure.ErrDetectorContractViolation))
}

func TestLabelOrigin(t *testing.T) {
	assert.Equal(t, image.Pt(10, 0), LabelOrigin(image.Rect(10, 10, 60, 60)))
	// Boxes at the top edge put the label above the frame; the origin is not clamped.
	assert.Equal(t, image.Pt(5, -8), LabelOrigin(image.Rect(5, 2, 40, 40)))
}

func TestAnnotateDrawsBoxInPaletteColor(t *testing.T) {
	a := newAnnotator(t)
	mat := blank(480, 640)
	defer mat.Close()

	err := a.Annotate(&mat, []detection.Detection{detection.New(2, 0.87, 10, 10, 50, 50)})
	require.NoError(t, err)

	// palette[2] is blue; Mats are BGR.
	px := mat.GetVecbAt(10, 10)
	assert.Equal(t, uint8(255), px[0])
	assert.Equal(t, uint8(0), px[1])
	assert.Equal(t, uint8(0), px[2])

	// The inside of the box is untouched.
	inside := mat.GetVecbAt(35, 35)
	assert.Equal(t, uint8(0), inside[0])
}

func TestAnnotateContractViolationLeavesFrameUntouched(t *testing.T) {
	a := newAnnotator(t)
	mat := blank(120, 160)
	defer mat.Close()

	err := a.Annotate(&mat, []detection.Detection{
		detection.New(1, 0.9, 10, 10, 20, 20),
		detection.New(99, 0.9, 50, 50, 20, 20),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrDetectorContractViolation))
	assert.Equal(t, 0, gocv.CountNonZero(grey(t, mat)))
}

func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func grey(t *testing.T, mat gocv.Mat) gocv.Mat {
	t.Helper()
	out := gocv.NewMat()
	t.Cleanup(func() { out.Close() })
	gocv.CvtColor(mat, &out, gocv.ColorBGRToGray)
	return out
}

func TestDetectAndDraw(t *testing.T) {
	a := newAnnotator(t)
	gen := test.NewMockFrameGenerator(320, 240)
	mat := gen.GenerateStaticFrame()
	defer mat.Close()

	want := []detection.Detection{
		detection.New(3, 0.6, 100, 100, 30, 30),
		detection.New(1, 0.9, 10, 20, 40, 40),
	}
	det := &test.ScriptedDetector{Script: [][]detection.Detection{want}}

	got, err := a.DetectAndDraw(det, frame.New(mat, 1))
	require.NoError(t, err)

	assert.Equal(t, want, got, "detector order is preserved")
	calls := det.Calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.4, calls[0].ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.4, calls[0].NMSThreshold, 1e-6)
	assert.Equal(t, image.Pt(320, 240), calls[0].Size)
}

func TestDetectAndDrawDetectorError(t *testing.T) {
	a := newAnnotator(t)
	mat := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer mat.Close()

	det := &test.ScriptedDetector{Err: errors.New("forward failed")}
	_, err := a.DetectAndDraw(det, frame.New(mat, 7))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "detect frame 7")
	assert.Contains(t, err.Error(), "forward failed")
}
