package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/test"
)

// BenchmarkRun measures the per-frame overhead of the runner around a detector that
// returns a fixed number of boxes, so annotation cost scales with the box count.
func BenchmarkRun(b *testing.B) {
	for _, boxes := range []int{0, 5, 50} {
		b.Run(fmt.Sprintf("boxes=%d", boxes), func(b *testing.B) {
			dets := make([]detection.Detection, boxes)
			for i := range dets {
				dets[i] = detection.New(i%3, 0.9, (i*7)%50, (i*5)%40, 10, 10)
			}
			script := make([][]detection.Detection, b.N)
			for i := range script {
				script[i] = dets
			}

			r := newRunner(b, &test.ScriptedDetector{Script: script}, Options{})
			ev := &events{}

			b.ResetTimer()
			res, err := r.Run(context.Background(), newFakeSource(ev, b.N), &fakeSink{ev: ev})
			b.StopTimer()

			if err != nil {
				b.Fatal(err)
			}
			if res.Frames != uint64(b.N) {
				b.Fatalf("ran %d frames, want %d", res.Frames, b.N)
			}
			b.ReportMetric(float64(res.Frames)/res.Elapsed.Seconds(), "frames/s")
		})
	}
}
