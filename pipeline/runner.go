// Package pipeline - Drives a frame source through detection and annotation into a sink,
// with cooperative cancellation and exactly-once release of both ends.
package pipeline

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/annotate"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/failure"
	"github.com/nvr-ai/go-detect/frame"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/sink"
	"github.com/nvr-ai/go-detect/source"
)

// Operation names recorded on the profiler.
const (
	OpAcquire  = "acquire"
	OpDetect   = "detect_annotate"
	OpEmit     = "emit"
	OpFrame    = "frame"
	MetricDets = "detections_per_frame"
)

// Options tunes a Runner.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Profiler, when set, receives per-stage timings.
	Profiler *profiler.RuntimeProfiler
	// MaxFrames completes a run after that many frames; zero means no limit.
	MaxFrames uint64
}

// Runner executes runs. It holds no per-run state, so one Runner can execute any
// number of runs, one after another or concurrently.
type Runner struct {
	detector  detection.Detector
	annotator *annotate.Annotator
	options   Options
}

// NewRunner creates a runner.
//
// Arguments:
//   - detector: The detection capability run on every frame.
//   - annotator: Draws the detections; it also carries the thresholds.
//   - options: Logging, profiling and an optional frame limit.
//
// Returns:
//   - *Runner: The runner.
//   - error: An error if the detector or annotator is missing.
func NewRunner(detector detection.Detector, annotator *annotate.Annotator, options Options) (*Runner, error) {
	if detector == nil {
		return nil, errors.New("runner requires a detector")
	}
	if annotator == nil {
		return nil, errors.New("runner requires an annotator")
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return &Runner{
		detector:  detector,
		annotator: annotator,
		options:   options,
	}, nil
}

// Result summarises a finished run.
type Result struct {
	ID         uuid.UUID
	State      State
	Frames     uint64
	Detections int
	Elapsed    time.Duration
}

// RunHandle is one execution of the pipeline. It exclusively owns its source and sink
// from Start until the run ends.
type RunHandle struct {
	// ID identifies the run in logs.
	ID uuid.UUID

	runner *Runner
	src    source.Source
	snk    sink.Sink
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	releaseOnce sync.Once
	releaseErr  error

	done   chan struct{}
	result Result
	err    error
}

// Start launches a run on its own goroutine and returns immediately.
//
// @example
// h := runner.Start(ctx, src, snk)
// defer h.Cancel()
// res, err := h.Wait()
func (r *Runner) Start(ctx context.Context, src source.Source, snk sink.Sink) *RunHandle {
	h := r.newHandle(ctx, src, snk)
	go h.run()
	return h
}

// Run executes a run on the calling goroutine and returns when it has ended and its
// source and sink have been released.
func (r *Runner) Run(ctx context.Context, src source.Source, snk sink.Sink) (Result, error) {
	h := r.newHandle(ctx, src, snk)
	h.run()
	return h.Wait()
}

func (r *Runner) newHandle(ctx context.Context, src source.Source, snk sink.Sink) *RunHandle {
	id := uuid.New()
	ctx, cancel := context.WithCancel(ctx)
	return &RunHandle{
		ID:     id,
		runner: r,
		src:    src,
		snk:    snk,
		logger: r.options.Logger.With(zap.String("run_id", id.String())),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (h *RunHandle) State() State {
	return State(h.state.Load())
}

// Cancel asks the run to stop. The frame in flight, if any, is finished and emitted
// first; no further frame is acquired. Cancel is safe to call at any time, repeatedly.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Done is closed once the run has ended and released its source and sink.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run has ended and returns its result. The error is nil for
// Completed and Cancelled runs unless releasing the source or sink failed.
func (h *RunHandle) Wait() (Result, error) {
	<-h.done
	return h.result, h.err
}

func (h *RunHandle) setState(s State) {
	prev := State(h.state.Swap(int32(s)))
	h.logger.Debug("run state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
}

func (h *RunHandle) run() {
	defer close(h.done)
	defer h.cancel()

	started := time.Now()
	h.logger.Info("run started", zap.Stringer("source", h.src), zap.Stringer("sink", h.snk))

	var (
		final State
		err   error
	)
	defer func() {
		rec := recover()
		if rec != nil {
			final, err = Failed, errors.Errorf("run panicked: %v", rec)
		}
		h.finish(started, final, err)
		if rec != nil {
			panic(rec)
		}
	}()

	final, err = h.loop()
}

// finish releases both ends and then publishes the terminal state.
func (h *RunHandle) finish(started time.Time, final State, err error) {
	if releaseErr := h.release(); releaseErr != nil {
		h.logger.Warn("release failed", zap.Error(releaseErr))
		if err == nil {
			err = releaseErr
		}
	}

	h.result.ID = h.ID
	h.result.State = final
	h.result.Elapsed = time.Since(started)
	h.err = err
	h.setState(final)

	fields := []zap.Field{
		zap.Stringer("state", final),
		zap.Uint64("frames", h.result.Frames),
		zap.Int("detections", h.result.Detections),
		zap.Duration("elapsed", h.result.Elapsed),
	}
	if err != nil {
		fields = append(fields, zap.Error(err), zap.String("failure_kind", failure.Kind(err)))
	}
	if final == Failed {
		h.logger.Error("run finished", fields...)
		return
	}
	h.logger.Info("run finished", fields...)
}

// loop opens both ends and pumps frames until a terminal state is reached.
func (h *RunHandle) loop() (State, error) {
	h.setState(Running)

	if err := h.src.Open(); err != nil {
		return Failed, errors.WithMessagef(err, "open %s", h.src)
	}
	if err := h.snk.Open(); err != nil {
		return Failed, errors.WithMessagef(err, "open %s", h.snk)
	}

	limit := h.runner.options.MaxFrames
	for {
		// Cancellation is only observed here, between frames.
		if h.ctx.Err() != nil {
			return Cancelled, nil
		}
		if limit > 0 && h.result.Frames >= limit {
			return Completed, nil
		}

		f, err := h.acquire()
		if errors.Is(err, io.EOF) {
			return Completed, nil
		}
		if err != nil {
			return Failed, err
		}

		if err := h.process(f); err != nil {
			return Failed, err
		}
	}
}

func (h *RunHandle) acquire() (frame.Frame, error) {
	done := h.runner.options.Profiler.StartOperation(OpAcquire)
	defer done()

	f, err := h.src.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return f, err
		}
		return f, errors.WithMessagef(err, "read %s", h.src)
	}
	return f, nil
}

// process detects, annotates and emits one frame.
func (h *RunHandle) process(f frame.Frame) error {
	prof := h.runner.options.Profiler
	frameDone := prof.StartOperation(OpFrame)
	defer frameDone()

	detectDone := prof.StartOperation(OpDetect)
	dets, err := h.runner.annotator.DetectAndDraw(h.runner.detector, f)
	detectDone()
	if err != nil {
		return err
	}

	emitDone := prof.StartOperation(OpEmit)
	err = h.snk.Emit(f)
	emitDone()
	if err != nil {
		return errors.WithMessagef(err, "emit frame %d to %s", f.Seq, h.snk)
	}

	h.result.Frames++
	h.result.Detections += len(dets)
	prof.RecordMetric(MetricDets, float64(len(dets)))
	h.logger.Debug("frame emitted", zap.Uint64("seq", f.Seq), zap.Int("detections", len(dets)))
	return nil
}

// release closes the sink, then the source. It runs at most once per run.
func (h *RunHandle) release() error {
	h.releaseOnce.Do(func() {
		h.releaseErr = multierr.Combine(
			errors.WithMessagef(h.snk.Close(), "close %s", h.snk),
			errors.WithMessagef(h.src.Close(), "close %s", h.src),
		)
	})
	return h.releaseErr
}
