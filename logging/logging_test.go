package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewFormats(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name: "json",
			opts: Options{Level: "info", Format: "json"},
			check: func(t *testing.T, out string) {
				var entry map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &entry))
				assert.Equal(t, "run started", entry["msg"])
				assert.Equal(t, "abc", entry["run_id"])
			},
		},
		{
			name: "console default",
			opts: Options{},
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "INFO")
				assert.Contains(t, out, "run started")
			},
		},
		{
			name: "level filters",
			opts: Options{Level: "WARN", Format: "json"},
			check: func(t *testing.T, out string) {
				assert.Empty(t, out)
			},
		},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, closeLogger, err := newLogger(tt.opts, zapcore.AddSync(&buf))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Info("run started", zap.String("run_id", "abc"))
			require.NoError(t, closeLogger())
			tt.check(t, buf.String())
		})
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.log")
	logger, closeLogger, err := New(Options{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("frame emitted", zap.Uint64("seq", 3))
	require.NoError(t, closeLogger())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"frame emitted"`)
	assert.Contains(t, string(data), `"seq":3`)
}

func TestCloseReleasesLogFile(t *testing.T) {
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	path := filepath.Join(dir, "detect.log")
	for i := 0; i < 3; i++ {
		logger, closeLogger, err := New(Options{File: path})
		require.NoError(t, err)
		logger.Info("run started")
		require.NoError(t, closeLogger())
	}
	assert.Zero(t, openHandles(t, path))
}

// openHandles counts this process's file descriptors that point at path.
func openHandles(t *testing.T, path string) int {
	t.Helper()
	fds, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)

	n := 0
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", fd.Name()))
		if err == nil && target == path {
			n++
		}
	}
	return n
}
