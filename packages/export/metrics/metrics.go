// Package metrics aggregates step and execution results and exports them in
// Prometheus text or JSON form.
package metrics

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

// StepMetrics is the measurement of one finished step.
type StepMetrics struct {
	Suite          string    `json:"suite"`
	Step           string    `json:"step"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	DurationMs     int64     `json:"duration_ms"`
	Passed         bool      `json:"passed"`
	TransportError bool      `json:"transport_error,omitempty"`
	AssertionCount int       `json:"assertion_count"`
	FailedCount    int       `json:"failed_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// AggregateMetrics is the rollup of everything a Collector has seen.
type AggregateMetrics struct {
	TotalRequests   int64                     `json:"total_requests"`
	SuccessCount    int64                     `json:"success_count"`
	FailureCount    int64                     `json:"failure_count"`
	TransportErrors int64                     `json:"transport_errors"`
	TotalDurationMs int64                     `json:"total_duration_ms"`
	MinDurationMs   int64                     `json:"min_duration_ms"`
	MaxDurationMs   int64                     `json:"max_duration_ms"`
	AvgDurationMs   float64                   `json:"avg_duration_ms"`
	P50DurationMs   int64                     `json:"p50_duration_ms"`
	P95DurationMs   int64                     `json:"p95_duration_ms"`
	P99DurationMs   int64                     `json:"p99_duration_ms"`
	StatusCodes     map[int]int64             `json:"status_codes"`
	Executions      map[string]int64          `json:"executions"` // by terminal status
	ByStep          map[string]*StepAggregate `json:"by_step"`
}

// StepAggregate is the rollup of one suite step across executions.
type StepAggregate struct {
	Suite         string  `json:"suite"`
	Step          string  `json:"step"`
	TotalRequests int64   `json:"total_requests"`
	SuccessCount  int64   `json:"success_count"`
	FailureCount  int64   `json:"failure_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MinDurationMs int64   `json:"min_duration_ms"`
	MaxDurationMs int64   `json:"max_duration_ms"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export writes the aggregate and the individual step metrics
	Export(aggregate *AggregateMetrics, steps []*StepMetrics) error
}

const (
	minLatencyMs = 1
	maxLatencyMs = 3_600_000
)

// Collector observes executions and aggregates their step results. It is
// safe for concurrent executions.
type Collector struct {
	mu        sync.Mutex
	running   map[string]string // execution ID -> suite name
	steps     []*StepMetrics
	aggregate *AggregateMetrics
	latency   *hdrhistogram.Histogram
	exporters []Exporter
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		running:   make(map[string]string),
		exporters: exporters,
		latency:   hdrhistogram.New(minLatencyMs, maxLatencyMs, 3),
		aggregate: &AggregateMetrics{
			StatusCodes: make(map[int]int64),
			Executions:  make(map[string]int64),
			ByStep:      make(map[string]*StepAggregate),
		},
	}
}

func (c *Collector) ExecutionStarted(executionID string, suite *model.TestSuite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := ""
	if suite != nil {
		name = suite.Name
	}
	c.running[executionID] = name
}

func (c *Collector) StepCompleted(executionID string, _ int, result *model.StepExecutionResult) {
	m := &StepMetrics{
		Step:           result.StepName,
		Method:         result.Request.Method,
		DurationMs:     result.Duration,
		Passed:         result.Status == model.StepPassed,
		TransportError: result.Response == nil,
		AssertionCount: len(result.Assertions),
		Timestamp:      result.CompletedAt,
	}
	if result.Response != nil {
		m.StatusCode = result.Response.Status
	}
	for _, a := range result.Assertions {
		if !a.Passed {
			m.FailedCount++
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	m.Suite = c.running[executionID]
	c.record(m)
}

func (c *Collector) ExecutionFinished(executionID string, status model.ExecutionStatus, _ *model.ExecutionSummary, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, executionID)
	c.aggregate.Executions[string(status)]++
}

// Record adds a step measurement directly.
func (c *Collector) Record(m *StepMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(m)
}

func (c *Collector) record(m *StepMetrics) {
	c.steps = append(c.steps, m)

	a := c.aggregate
	a.TotalRequests++
	a.TotalDurationMs += m.DurationMs
	if m.Passed {
		a.SuccessCount++
	} else {
		a.FailureCount++
	}
	if m.TransportError {
		a.TransportErrors++
	} else {
		a.StatusCodes[m.StatusCode]++
	}

	if a.TotalRequests == 1 || m.DurationMs < a.MinDurationMs {
		a.MinDurationMs = m.DurationMs
	}
	if m.DurationMs > a.MaxDurationMs {
		a.MaxDurationMs = m.DurationMs
	}
	a.AvgDurationMs = float64(a.TotalDurationMs) / float64(a.TotalRequests)

	v := m.DurationMs
	if v < minLatencyMs {
		v = minLatencyMs
	} else if v > maxLatencyMs {
		v = maxLatencyMs
	}
	_ = c.latency.RecordValue(v)
	a.P50DurationMs = c.latency.ValueAtQuantile(50)
	a.P95DurationMs = c.latency.ValueAtQuantile(95)
	a.P99DurationMs = c.latency.ValueAtQuantile(99)

	key := m.Suite + "\x00" + m.Step
	sa, ok := a.ByStep[key]
	if !ok {
		sa = &StepAggregate{Suite: m.Suite, Step: m.Step, MinDurationMs: m.DurationMs, MaxDurationMs: m.DurationMs}
		a.ByStep[key] = sa
	}
	sa.TotalRequests++
	if m.Passed {
		sa.SuccessCount++
	} else {
		sa.FailureCount++
	}
	if m.DurationMs < sa.MinDurationMs {
		sa.MinDurationMs = m.DurationMs
	}
	if m.DurationMs > sa.MaxDurationMs {
		sa.MaxDurationMs = m.DurationMs
	}
	sa.AvgDurationMs = (sa.AvgDurationMs*float64(sa.TotalRequests-1) + float64(m.DurationMs)) / float64(sa.TotalRequests)
}

// Snapshot returns a deep copy of the aggregate and the recorded steps.
func (c *Collector) Snapshot() (*AggregateMetrics, []*StepMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := *c.aggregate
	a.StatusCodes = make(map[int]int64, len(c.aggregate.StatusCodes))
	for k, v := range c.aggregate.StatusCodes {
		a.StatusCodes[k] = v
	}
	a.Executions = make(map[string]int64, len(c.aggregate.Executions))
	for k, v := range c.aggregate.Executions {
		a.Executions[k] = v
	}
	a.ByStep = make(map[string]*StepAggregate, len(c.aggregate.ByStep))
	for k, v := range c.aggregate.ByStep {
		sa := *v
		a.ByStep[k] = &sa
	}
	steps := make([]*StepMetrics, len(c.steps))
	for i, m := range c.steps {
		cp := *m
		steps[i] = &cp
	}
	return &a, steps
}

// Flush hands the current snapshot to every exporter.
func (c *Collector) Flush() error {
	aggregate, steps := c.Snapshot()
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Export(aggregate, steps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FileExporter picks the exporter for path by extension: .json writes JSON,
// anything else the Prometheus text format.
func FileExporter(path string) Exporter {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONExporter(WithJSONFile(path))
	}
	return NewPrometheusExporter(WithPrometheusFile(path))
}
