package main

import (
	"context"
	"image"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-detect/annotate"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/display"
	"github.com/nvr-ai/go-detect/dnn"
	"github.com/nvr-ai/go-detect/logging"
	"github.com/nvr-ai/go-detect/mode"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/sink"
	"github.com/nvr-ai/go-detect/source"
)

// execute wires the configured detector, surface and mode together and runs the
// pipeline until it ends or the process is interrupted.
func execute(ctx context.Context, cfg config.App, m mode.Mode, maxFrames uint64) (err error) {
	logger, closeLogger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeLogger()) }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	labels, err := detection.LoadLabels(cfg.Model.Labels)
	if err != nil {
		return err
	}
	annotator, err := annotate.New(labels, cfg.Pipeline)
	if err != nil {
		return err
	}

	detector, err := dnn.NewDetector(dnn.Config{
		ModelPath:  cfg.Model.Weights,
		ConfigPath: cfg.Model.Config,
		Backend:    cfg.Model.Backend,
		Target:     cfg.Model.Target,
		InputShape: image.Pt(cfg.Model.InputWidth, cfg.Model.InputHeight),
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, detector.Close()) }()
	logger.Info("model loaded",
		zap.String("weights", cfg.Model.Weights),
		zap.Int("classes", len(labels)),
		zap.Strings("outputs", detector.OutputNames()))

	var prof *profiler.RuntimeProfiler
	if cfg.StatsInterval > 0 {
		prof = profiler.New(profiler.Options{ReportInterval: cfg.StatsInterval, Logger: logger})
		prof.Start(ctx)
		defer prof.Stop()
	}

	runner, err := pipeline.NewRunner(detector, annotator, pipeline.Options{
		Logger:    logger,
		Profiler:  prof,
		MaxFrames: maxFrames,
	})
	if err != nil {
		return err
	}

	ctrl := &mode.Controller{
		CameraIndex: cfg.Camera.Index,
		Camera: source.CameraOptions{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		},
		Codec:     cfg.Recording.Codec,
		Extension: cfg.Recording.Extension,
	}

	_, still := m.(mode.Image)
	switch cfg.Display.Kind {
	case "window":
		return runWindow(ctx, cfg, m, still, ctrl, runner, logger)
	case "mjpeg":
		return runPreview(ctx, cfg, m, still, ctrl, runner, prof, logger)
	default:
		ctrl.Surface = sink.SurfaceFunc(func(gocv.Mat) error { return nil })
		return runOnce(ctx, m, ctrl, runner, logger)
	}
}

// runWindow runs on the calling goroutine, which owns the window's event loop. A still
// image stays on screen until a key is pressed.
func runWindow(ctx context.Context, cfg config.App, m mode.Mode, still bool, ctrl *mode.Controller, runner *pipeline.Runner, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	window := display.NewWindow(cfg.Display.Title, cancel)
	defer window.Close()
	ctrl.Surface = window

	if err := runOnce(ctx, m, ctrl, runner, logger); err != nil {
		return err
	}
	if still && ctx.Err() == nil {
		logger.Info("press any key in the window to exit")
		window.WaitKey()
	}
	return nil
}

// runPreview serves the MJPEG preview next to the run. A still image keeps being served
// until the process is interrupted.
func runPreview(ctx context.Context, cfg config.App, m mode.Mode, still bool, ctrl *mode.Controller, runner *pipeline.Runner, prof *profiler.RuntimeProfiler, logger *zap.Logger) error {
	preview := display.NewMJPEG(display.MJPEGOptions{MaxWidth: cfg.Display.MaxWidth}, logger)
	ctrl.Surface = preview
	prof.AddMetricsCollector(profiler.MetricsCollectorFunc(func() map[string]float64 {
		return map[string]float64{"preview_viewers": float64(preview.Viewers())}
	}))

	serve := func(ctx context.Context) error {
		return preview.Serve(ctx, cfg.Display.Listen)
	}
	run := func(ctx context.Context) error {
		return runOnce(ctx, m, ctrl, runner, logger)
	}
	return serveAlongside(ctx, serve, run, still)
}

// serveAlongside runs serve and run together. Cancelling ctx only reaches run; serve is
// stopped once run has returned, so the frame in flight can still be shown. A still
// run keeps serve going until ctx is cancelled. A serve error cancels run.
func serveAlongside(ctx context.Context, serve, run func(context.Context) error, still bool) error {
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServing()

	g.Go(func() error {
		return serve(serveCtx)
	})
	g.Go(func() error {
		defer stopServing()
		if err := run(gctx); err != nil || !still {
			return err
		}
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func runOnce(ctx context.Context, m mode.Mode, ctrl *mode.Controller, runner *pipeline.Runner, logger *zap.Logger) error {
	src, snk, err := ctrl.Build(m)
	if err != nil {
		return err
	}

	logger.Info("starting", zap.Stringer("mode", m))
	res, err := runner.Run(ctx, src, snk)
	if rec := recordingOf(snk); rec != nil && rec.Written() > 0 {
		logger.Info("recording saved", zap.String("path", rec.Path()), zap.Uint64("frames", rec.Written()))
	}
	if err != nil {
		return errors.Wrapf(err, "%s run %s", m, res.State)
	}
	return nil
}

func recordingOf(snk sink.Sink) *sink.Recording {
	switch s := snk.(type) {
	case *sink.Recording:
		return s
	case *sink.Composite:
		for _, child := range s.Children() {
			if rec := recordingOf(child); rec != nil {
				return rec
			}
		}
	}
	return nil
}
