package source

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/test"
)

func TestImageYieldsOneFrame(t *testing.T) {
	path, err := test.NewMockFrameGenerator(320, 240).WriteImage(t.TempDir(), "still.png")
	require.NoError(t, err)

	src := NewImage(path)
	require.NoError(t, src.Open())
	defer src.Close()

	f, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(320, 240), f.Size())
	assert.Equal(t, uint64(1), f.Seq)

	for i := 0; i < 3; i++ {
		_, err = src.Next()
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestImageUnreadable(t *testing.T) {
	dir := t.TempDir()
	empty, err := test.WriteEmptyFile(dir, "empty.jpg")
	require.NoError(t, err)
	garbage := filepath.Join(dir, "garbage.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.jpg")},
		{name: "zero bytes", path: empty},
		{name: "undecodable", path: garbage},
		{name: "directory", path: dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewImage(tt.path)
			err := src.Open()
			assert.True(t, errors.Is(err, failure.ErrUnreadableInput), "got %v", err)
			assert.NoError(t, src.Close())
		})
	}
}

func TestVideoEndOfStream(t *testing.T) {
	const frames = 5
	path, err := test.NewMockFrameGenerator(320, 240).WriteVideo(t.TempDir(), "clip.avi", frames)
	require.NoError(t, err)

	src := NewVideo(path)
	require.NoError(t, src.Open())
	defer src.Close()

	for i := 1; i <= frames; i++ {
		f, err := src.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, uint64(i), f.Seq)
		assert.Equal(t, image.Pt(320, 240), f.Size())
	}

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestVideoNotRestartable(t *testing.T) {
	path, err := test.NewMockFrameGenerator(160, 120).WriteVideo(t.TempDir(), "clip.avi", 2)
	require.NoError(t, err)

	src := NewVideo(path)
	require.NoError(t, src.Open())
	assert.Error(t, src.Open(), "second open")
	require.NoError(t, src.Close())
	assert.NoError(t, src.Close(), "close is idempotent")
	assert.Error(t, src.Open(), "reopen after close")

	_, err = src.Next()
	assert.Error(t, err)

	fresh := NewVideo(path)
	require.NoError(t, fresh.Open())
	defer fresh.Close()
	f, err := fresh.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
}

func TestVideoUnreadable(t *testing.T) {
	dir := t.TempDir()
	empty, err := test.WriteEmptyFile(dir, "empty.avi")
	require.NoError(t, err)

	for _, path := range []string{empty, filepath.Join(dir, "missing.avi")} {
		src := NewVideo(path)
		err := src.Open()
		assert.True(t, errors.Is(err, failure.ErrUnreadableInput), "%s: got %v", path, err)
		assert.NoError(t, src.Close())
	}
}

func TestNextBeforeOpen(t *testing.T) {
	for _, src := range []Source{
		NewImage("a.jpg"),
		NewVideo("a.avi"),
		NewCamera(DefaultCameraIndex, CameraOptions{}),
	} {
		_, err := src.Next()
		assert.Error(t, err, src.String())
		assert.NoError(t, src.Close(), src.String())
	}
}

func TestCameraUnavailable(t *testing.T) {
	src := NewCamera(97, CameraOptions{Width: 640, Height: 480, FPS: 10})
	err := src.Open()
	assert.True(t, errors.Is(err, failure.ErrDeviceReadFailure), "got %v", err)
	assert.NoError(t, src.Close())
	assert.Equal(t, "camera source 97", src.String())
}

func TestSequenceOrdersByFrameNumber(t *testing.T) {
	dir := t.TempDir()
	for _, fx := range []struct {
		name   string
		width  int
		height int
	}{
		{"frame-10.png", 30, 20},
		{"frame-2.png", 20, 20},
		{"frame-1.jpg", 10, 20},
		{"notes.png", 40, 40},
		{"frame-x.png", 50, 50},
	} {
		_, err := test.NewMockFrameGenerator(fx.width, fx.height).WriteImage(dir, fx.name)
		require.NoError(t, err)
	}

	src := NewSequence(dir)
	require.NoError(t, src.Open())
	defer src.Close()

	for i, width := range []int{10, 20, 30} {
		f, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.Equal(t, width, f.Size().X)
	}
	_, err := src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSequenceUnreadable(t *testing.T) {
	empty := t.TempDir()
	for _, dir := range []string{empty, filepath.Join(empty, "missing")} {
		src := NewSequence(dir)
		err := src.Open()
		assert.True(t, errors.Is(err, failure.ErrUnreadableInput), "%s: got %v", dir, err)
		assert.NoError(t, src.Close())
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-1.jpg"), []byte("garbage"), 0o644))
	src := NewSequence(dir)
	require.NoError(t, src.Open())
	defer src.Close()
	_, err := src.Next()
	assert.True(t, errors.Is(err, failure.ErrUnreadableInput), "got %v", err)
}
