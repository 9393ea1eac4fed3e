package mode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/sink"
	"github.com/nvr-ai/go-detect/source"
)

func controller() *Controller {
	return &Controller{
		Surface:     sink.SurfaceFunc(func(gocv.Mat) error { return nil }),
		CameraIndex: 2,
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		src  interface{}
		snk  interface{}
	}{
		{name: "image", mode: Image{Path: "a.jpg"}, src: &source.Image{}, snk: &sink.Display{}},
		{name: "video", mode: Video{Path: "a.mp4"}, src: &source.Video{}, snk: &sink.Display{}},
		{name: "live", mode: Live{}, src: &source.Camera{}, snk: &sink.Display{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, snk, err := controller().Build(tt.mode)
			require.NoError(t, err)
			assert.IsType(t, tt.src, src)
			assert.IsType(t, tt.snk, snk)
		})
	}
}

func TestBuildPaths(t *testing.T) {
	src, _, err := controller().Build(Image{Path: "photos/cat.png"})
	require.NoError(t, err)
	assert.Equal(t, "photos/cat.png", src.(*source.Image).Path())

	src, _, err = controller().Build(Video{Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &source.Sequence{}, src, "directories play as frame sequences")

	src, _, err = controller().Build(Live{})
	require.NoError(t, err)
	assert.Equal(t, 2, src.(*source.Camera).Index())

	_, _, err = controller().Build(Image{})
	assert.Error(t, err)
	_, _, err = controller().Build(Video{})
	assert.Error(t, err)
	_, _, err = controller().Build(nil)
	assert.Error(t, err)
	_, _, err = (&Controller{}).Build(Live{})
	assert.Error(t, err)
}

func TestBuildRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures", "today")
	c := controller()
	c.Codec = "MJPG"

	src, snk, err := c.Build(Record{Dir: dir, Width: 640, Height: 480, FPS: 10})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "directory created")

	assert.IsType(t, &source.Camera{}, src)
	composite, ok := snk.(*sink.Composite)
	require.True(t, ok)
	children := composite.Children()
	require.Len(t, children, 2)
	assert.IsType(t, &sink.Display{}, children[0])
	recording, ok := children[1].(*sink.Recording)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "recorded_live_video.avi"), recording.Path())

	_, err = os.Stat(recording.Path())
	assert.True(t, os.IsNotExist(err), "build does not open the writer")
}

func TestBuildRecordDirectoryCreateFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, _, err := controller().Build(Record{Dir: filepath.Join(file, "out"), Width: 640, Height: 480, FPS: 10})
	assert.True(t, errors.Is(err, failure.ErrDirectoryCreateFailure), "got %v", err)
}

func TestBuildRecordInvalid(t *testing.T) {
	dir := t.TempDir()
	for _, m := range []Record{
		{Dir: dir, Width: 0, Height: 480, FPS: 10},
		{Dir: dir, Width: 640, Height: -480, FPS: 10},
		{Dir: dir, Width: 640, Height: 480, FPS: 0},
		{Width: 640, Height: 480, FPS: 10},
	} {
		_, _, err := controller().Build(m)
		assert.Error(t, err, m.String())
		assert.False(t, errors.Is(err, failure.ErrDirectoryCreateFailure), m.String())
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "image a.jpg", Image{Path: "a.jpg"}.String())
	assert.Equal(t, "live", Live{}.String())
	assert.Equal(t, "record /tmp 640x480@10", Record{Dir: "/tmp", Width: 640, Height: 480, FPS: 10}.String())
}
