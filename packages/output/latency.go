package output

import (
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

// maxTrackableMs bounds the histogram at one hour.
const maxTrackableMs = 3_600_000

// Latency holds step duration percentiles in milliseconds.
type Latency struct {
	Count int64   `json:"count"`
	Min   int64   `json:"min"`
	P50   int64   `json:"p50"`
	P95   int64   `json:"p95"`
	P99   int64   `json:"p99"`
	Max   int64   `json:"max"`
	Mean  float64 `json:"mean"`
}

// StepLatency summarizes the durations of steps that received a response.
// The second result is false when there is nothing to summarize.
func StepLatency(steps []*model.StepExecutionResult) (Latency, bool) {
	h := hdrhistogram.New(1, maxTrackableMs, 3)
	for _, step := range steps {
		if step.Response == nil {
			continue
		}
		ms := step.Duration
		if ms < 1 {
			ms = 1
		}
		if ms > maxTrackableMs {
			ms = maxTrackableMs
		}
		_ = h.RecordValue(ms)
	}
	if h.TotalCount() == 0 {
		return Latency{}, false
	}
	return Latency{
		Count: h.TotalCount(),
		Min:   h.Min(),
		P50:   h.ValueAtQuantile(50),
		P95:   h.ValueAtQuantile(95),
		P99:   h.ValueAtQuantile(99),
		Max:   h.Max(),
		Mean:  h.Mean(),
	}, true
}
