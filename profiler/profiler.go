// Package profiler - Run statistics: per-stage timings, counters and periodic runtime
// reports written to the structured log.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// MetricsCollector supplies gauge values sampled on every profiler tick.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// MetricsCollectorFunc adapts a function to a MetricsCollector.
type MetricsCollectorFunc func() map[string]float64

// CollectMetrics calls f.
func (f MetricsCollectorFunc) CollectMetrics() map[string]float64 {
	return f()
}

// RuntimeProfiler records pipeline timings and metrics and reports them periodically.
//
// It is safe for concurrent use. A nil *RuntimeProfiler is valid and records nothing,
// so callers can leave profiling off without branching.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	clock          clock.Clock
	logger         *zap.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started time.Time
	running bool

	goroutines int
	heapAlloc  uint64
	gcCycles   uint32

	metrics    map[string]*metricTracker
	operations map[string]*timeTracker
	collectors []MetricsCollector
}

// Options configures the runtime profiler.
type Options struct {
	// ReportInterval is how often a report is logged (default: 5s).
	ReportInterval time.Duration
	// SampleInterval is how often runtime stats and collectors are sampled (default: 1s).
	SampleInterval time.Duration
	// MaxSamples bounds the rolling window kept per metric (default: 600).
	MaxSamples int
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Logger receives the reports; reports are dropped when nil.
	Logger *zap.Logger
}

type metricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

type timeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// MetricStats summarises a metric over its rolling window.
type MetricStats struct {
	Avg     float64
	Min     float64
	Max     float64
	Samples int
	Count   int64
}

// OperationStats summarises an operation's timings over its rolling window.
type OperationStats struct {
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
	Samples int
	Count   int64
}

// Snapshot is a point-in-time copy of everything the profiler tracks.
type Snapshot struct {
	Uptime     time.Duration
	Goroutines int
	HeapAlloc  uint64
	GCCycles   uint32
	Metrics    map[string]MetricStats
	Operations map[string]OperationStats
}

// New creates a profiler. Nothing is sampled or reported until Start.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func New(opts Options) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 5 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		clock:          opts.Clock,
		logger:         opts.Logger,
		started:        opts.Clock.Now(),
		metrics:        make(map[string]*metricTracker),
		operations:     make(map[string]*timeTracker),
	}
}

// Start begins sampling and reporting until ctx is cancelled or Stop is called.
// Calling Start on a running profiler does nothing.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.running {
		return
	}
	rp.running = true
	rp.started = rp.clock.Now()

	ctx, rp.cancel = context.WithCancel(ctx)
	sample := rp.clock.Ticker(rp.sampleInterval)
	report := rp.clock.Ticker(rp.reportInterval)

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()
		defer sample.Stop()
		defer report.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sample.C:
				rp.sample()
			case <-report.C:
				rp.Report()
			}
		}
	}()
}

// Stop stops the background loop and waits for it to exit.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	cancel := rp.cancel
	rp.mu.Unlock()

	cancel()
	rp.wg.Wait()
}

// AddMetricsCollector registers a collector sampled on every tick.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records one value of a named metric.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, ok := rp.metrics[name]
	if !ok {
		tracker = &metricTracker{min: value, max: value}
		rp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// done := rp.StartOperation("detect")
// dets, err := det.Detect(img, conf, nms)
// done()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	if rp == nil {
		return func() {}
	}
	start := rp.clock.Now()
	return func() {
		rp.recordOperation(name, rp.clock.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperation(name string, d time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &timeTracker{min: d, max: d}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, d)
	tracker.total += d
	if len(tracker.durations) > rp.maxSamples {
		tracker.total -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, d)
	tracker.max = max(tracker.max, d)
}

// sample reads runtime stats and polls the collectors.
func (rp *RuntimeProfiler) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.goroutines = runtime.NumGoroutine()
	rp.heapAlloc = mem.HeapAlloc
	rp.gcCycles = mem.NumGC
	for _, collector := range rp.collectors {
		for name, value := range collector.CollectMetrics() {
			rp.recordMetricLocked(name, value)
		}
	}
}

// Snapshot returns the current statistics.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	if rp == nil {
		return Snapshot{}
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	snap := Snapshot{
		Uptime:     rp.clock.Since(rp.started),
		Goroutines: rp.goroutines,
		HeapAlloc:  rp.heapAlloc,
		GCCycles:   rp.gcCycles,
		Metrics:    make(map[string]MetricStats, len(rp.metrics)),
		Operations: make(map[string]OperationStats, len(rp.operations)),
	}
	for name, t := range rp.metrics {
		snap.Metrics[name] = MetricStats{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
			Count:   t.count,
		}
	}
	for name, t := range rp.operations {
		snap.Operations[name] = OperationStats{
			Avg:     t.total / time.Duration(len(t.durations)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.durations),
			Count:   t.count,
		}
	}
	return snap
}

// Report logs the current statistics at info level.
func (rp *RuntimeProfiler) Report() {
	if rp == nil {
		return
	}
	snap := rp.Snapshot()

	fields := []zap.Field{
		zap.Duration("uptime", snap.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", snap.Goroutines),
		zap.Uint64("heap_alloc", snap.HeapAlloc),
		zap.Uint32("gc_cycles", snap.GCCycles),
	}
	for _, name := range sortedKeys(snap.Operations) {
		op := snap.Operations[name]
		fields = append(fields, zap.Dict(name,
			zap.Duration("avg", op.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", op.Min.Truncate(time.Microsecond)),
			zap.Duration("max", op.Max.Truncate(time.Microsecond)),
			zap.Int64("count", op.Count),
		))
	}
	for _, name := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[name]
		fields = append(fields, zap.Dict(name,
			zap.Float64("avg", m.Avg),
			zap.Float64("min", m.Min),
			zap.Float64("max", m.Max),
			zap.Int64("count", m.Count),
		))
	}
	rp.logger.Info("profiler report", fields...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
