// Package main is the detect command: run object detection on an image, a video file or
// a live camera, optionally recording the annotated stream.
package main

import (
	"context"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/mode"
)

const (
	flagConfig        = "config"
	flagWeights       = "weights"
	flagModelConfig   = "model-config"
	flagLabels        = "labels"
	flagConfidence    = "confidence"
	flagNMS           = "nms"
	flagBackend       = "backend"
	flagTarget        = "target"
	flagCamera        = "camera"
	flagDisplay       = "display"
	flagListen        = "listen"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
	flagLogFile       = "log-file"
	flagStatsInterval = "stats-interval"
	flagMaxFrames     = "max-frames"

	flagDir    = "dir"
	flagWidth  = "width"
	flagHeight = "height"
	flagFPS    = "fps"
)

// runFunc executes one run with the merged configuration.
type runFunc func(ctx context.Context, cfg config.App, m mode.Mode, maxFrames uint64) error

func main() {
	if err := newApp(execute).RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func envVars(name string) []string {
	return []string{"DETECT_" + name}
}

func newApp(run runFunc) *cli.App {
	action := func(build func(c *cli.Context, cfg config.App) (mode.Mode, error)) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			m, err := build(c, cfg)
			if err != nil {
				return err
			}
			return run(c.Context, cfg, m, c.Uint64(flagMaxFrames))
		}
	}

	pathArg := func(c *cli.Context, what string) (string, error) {
		if c.NArg() != 1 {
			return "", errors.Errorf("expected exactly one %s path", what)
		}
		return c.Args().First(), nil
	}

	return &cli.App{
		Name:            "detect",
		Usage:           "run object detection on images, video files and cameras",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "load configuration from `FILE` (JSON5)", EnvVars: envVars("CONFIG")},
			&cli.StringFlag{Name: flagWeights, Usage: "network weights `FILE`", EnvVars: envVars("WEIGHTS")},
			&cli.StringFlag{Name: flagModelConfig, Usage: "network configuration `FILE`", EnvVars: envVars("MODEL_CONFIG")},
			&cli.StringFlag{Name: flagLabels, Usage: "class names `FILE`, one per line", EnvVars: envVars("LABELS")},
			&cli.Float64Flag{Name: flagConfidence, Usage: "minimum detection confidence", EnvVars: envVars("CONFIDENCE")},
			&cli.Float64Flag{Name: flagNMS, Usage: "non-maximum suppression overlap threshold", EnvVars: envVars("NMS")},
			&cli.StringFlag{Name: flagBackend, Usage: "DNN backend: default, opencv, cuda, openvino", EnvVars: envVars("BACKEND")},
			&cli.StringFlag{Name: flagTarget, Usage: "DNN target: cpu, cuda, cuda-fp16, opencl", EnvVars: envVars("TARGET")},
			&cli.IntFlag{Name: flagCamera, Usage: "camera device `INDEX`", EnvVars: envVars("CAMERA")},
			&cli.StringFlag{Name: flagDisplay, Usage: "display surface: window, mjpeg or none", EnvVars: envVars("DISPLAY_KIND")},
			&cli.StringFlag{Name: flagListen, Usage: "mjpeg preview `ADDRESS`", EnvVars: envVars("LISTEN")},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error", EnvVars: envVars("LOG_LEVEL")},
			&cli.StringFlag{Name: flagLogFormat, Usage: "console or json", EnvVars: envVars("LOG_FORMAT")},
			&cli.StringFlag{Name: flagLogFile, Usage: "also write JSON logs to `FILE`", EnvVars: envVars("LOG_FILE")},
			&cli.DurationFlag{Name: flagStatsInterval, Usage: "log run statistics every `INTERVAL`; 0 disables", EnvVars: envVars("STATS_INTERVAL")},
			&cli.Uint64Flag{Name: flagMaxFrames, Usage: "stop after `N` frames; 0 means no limit", EnvVars: envVars("MAX_FRAMES")},
		},
		Commands: []*cli.Command{
			{
				Name:      "image",
				Usage:     "annotate a single image",
				ArgsUsage: "<path>",
				Action: action(func(c *cli.Context, _ config.App) (mode.Mode, error) {
					path, err := pathArg(c, "image")
					return mode.Image{Path: path}, err
				}),
			},
			{
				Name:      "video",
				Usage:     "annotate every frame of a video file",
				ArgsUsage: "<path>",
				Action: action(func(c *cli.Context, _ config.App) (mode.Mode, error) {
					path, err := pathArg(c, "video")
					return mode.Video{Path: path}, err
				}),
			},
			{
				Name:  "live",
				Usage: "annotate the live camera until interrupted",
				Action: action(func(*cli.Context, config.App) (mode.Mode, error) {
					return mode.Live{}, nil
				}),
			},
			{
				Name:  "record",
				Usage: "annotate the live camera and record the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagDir, Usage: "output `DIR`, created when missing", EnvVars: envVars("RECORD_DIR")},
					&cli.IntFlag{Name: flagWidth, Usage: "recording width", EnvVars: envVars("RECORD_WIDTH")},
					&cli.IntFlag{Name: flagHeight, Usage: "recording height", EnvVars: envVars("RECORD_HEIGHT")},
					&cli.Float64Flag{Name: flagFPS, Usage: "recording frame rate", EnvVars: envVars("RECORD_FPS")},
				},
				Action: action(func(_ *cli.Context, cfg config.App) (mode.Mode, error) {
					return mode.Record{
						Dir:    cfg.Recording.Dir,
						Width:  cfg.Recording.Width,
						Height: cfg.Recording.Height,
						FPS:    cfg.Recording.FPS,
					}, nil
				}),
			},
		},
	}
}

// loadConfig reads the optional config file and applies the flags that were set on the
// command line or through the environment.
func loadConfig(c *cli.Context) (config.App, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.App{}, err
		}
		cfg = loaded
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString(flagWeights, &cfg.Model.Weights)
	setString(flagModelConfig, &cfg.Model.Config)
	setString(flagLabels, &cfg.Model.Labels)
	setString(flagBackend, &cfg.Model.Backend)
	setString(flagTarget, &cfg.Model.Target)
	setString(flagDisplay, &cfg.Display.Kind)
	setString(flagListen, &cfg.Display.Listen)
	setString(flagLogLevel, &cfg.Log.Level)
	setString(flagLogFormat, &cfg.Log.Format)
	setString(flagLogFile, &cfg.Log.File)
	setString(flagDir, &cfg.Recording.Dir)

	if c.IsSet(flagConfidence) {
		cfg.Pipeline.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}
	if c.IsSet(flagNMS) {
		cfg.Pipeline.NMSThreshold = float32(c.Float64(flagNMS))
	}
	if c.IsSet(flagCamera) {
		cfg.Camera.Index = c.Int(flagCamera)
	}
	if c.IsSet(flagStatsInterval) {
		cfg.StatsInterval = c.Duration(flagStatsInterval)
	}
	if c.IsSet(flagWidth) {
		cfg.Recording.Width = c.Int(flagWidth)
	}
	if c.IsSet(flagHeight) {
		cfg.Recording.Height = c.Int(flagHeight)
	}
	if c.IsSet(flagFPS) {
		cfg.Recording.FPS = c.Float64(flagFPS)
	}

	if err := cfg.Validate(); err != nil {
		return config.App{}, err
	}
	return cfg, nil
}
