// Package logging - Builds the process-wide zap logger: console or JSON on stderr, and
// optionally a size-rotated log file.
package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// FormatConsole writes human readable lines.
	FormatConsole = "console"
	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"
)

// Options selects the logger's level, encoding and destinations.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is "console" or "json".
	Format string
	// File, when set, also writes JSON logs there, rotated at MaxSizeMB.
	File      string
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
}

// New builds a logger.
//
// Arguments:
//   - opts: The level, format and optional file.
//
// Returns:
//   - *zap.Logger: The logger.
//   - func() error: Flushes the logger and closes the log file; call it once the
//     logger is no longer used.
//   - error: An error if the level or format is unknown.
func New(opts Options) (*zap.Logger, func() error, error) {
	return newLogger(opts, zapcore.Lock(os.Stderr))
}

func newLogger(opts Options, stderr zapcore.WriteSyncer) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, nil, errors.Wrapf(err, "log level %q", opts.Level)
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, nil, errors.Errorf("unknown log format %q", opts.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, stderr, level)}
	var file *lumberjack.Logger
	if opts.File != "" {
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.ErrorOutput(stderr))
	closeLogger := func() error {
		// stderr sync errors are ignored.
		_ = logger.Sync()
		if file == nil {
			return nil
		}
		return errors.Wrapf(file.Close(), "close log file %s", opts.File)
	}
	return logger, closeLogger, nil
}
