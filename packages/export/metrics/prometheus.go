package metrics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PrometheusExporter writes the text exposition format, suitable for the
// node_exporter textfile collector.
type PrometheusExporter struct {
	writer   io.Writer
	filePath string
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusFile writes each export to path, replacing it atomically.
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export writes the aggregate. Step level samples are folded into the
// per-step series.
func (p *PrometheusExporter) Export(a *AggregateMetrics, _ []*StepMetrics) error {
	var buf bytes.Buffer
	writeMetrics(&buf, a)

	if p.filePath != "" {
		if err := writeFileAtomic(p.filePath, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if p.writer != nil {
		if _, err := p.writer.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func writeMetrics(w io.Writer, a *AggregateMetrics) {
	fmt.Fprintf(w, "# HELP testforge_requests_total Total number of step requests made\n")
	fmt.Fprintf(w, "# TYPE testforge_requests_total counter\n")
	fmt.Fprintf(w, "testforge_requests_total %d\n", a.TotalRequests)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_steps_passed_total Steps whose assertions all passed\n")
	fmt.Fprintf(w, "# TYPE testforge_steps_passed_total counter\n")
	fmt.Fprintf(w, "testforge_steps_passed_total %d\n", a.SuccessCount)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_steps_failed_total Steps with a failed assertion or no response\n")
	fmt.Fprintf(w, "# TYPE testforge_steps_failed_total counter\n")
	fmt.Fprintf(w, "testforge_steps_failed_total %d\n", a.FailureCount)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_transport_errors_total Requests that never got a response\n")
	fmt.Fprintf(w, "# TYPE testforge_transport_errors_total counter\n")
	fmt.Fprintf(w, "testforge_transport_errors_total %d\n", a.TransportErrors)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_step_duration_ms Step duration in milliseconds\n")
	fmt.Fprintf(w, "# TYPE testforge_step_duration_ms gauge\n")
	fmt.Fprintf(w, "testforge_step_duration_ms{quantile=\"min\"} %d\n", a.MinDurationMs)
	fmt.Fprintf(w, "testforge_step_duration_ms{quantile=\"max\"} %d\n", a.MaxDurationMs)
	fmt.Fprintf(w, "testforge_step_duration_ms{quantile=\"avg\"} %.2f\n", a.AvgDurationMs)
	if a.TotalRequests > 0 {
		fmt.Fprintf(w, "testforge_step_duration_ms{quantile=\"0.50\"} %d\n", a.P50DurationMs)
		fmt.Fprintf(w, "testforge_step_duration_ms{quantile=\"0.95\"} %d\n", a.P95DurationMs)
		fmt.Fprintf(w, "testforge_step_duration_ms{quantile=\"0.99\"} %d\n", a.P99DurationMs)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_requests_by_status_total Responses by HTTP status code\n")
	fmt.Fprintf(w, "# TYPE testforge_requests_by_status_total counter\n")
	codes := make([]int, 0, len(a.StatusCodes))
	for code := range a.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "testforge_requests_by_status_total{status=\"%d\"} %d\n", code, a.StatusCodes[code])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_executions_total Finished executions by status\n")
	fmt.Fprintf(w, "# TYPE testforge_executions_total counter\n")
	statuses := make([]string, 0, len(a.Executions))
	for status := range a.Executions {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "testforge_executions_total{status=\"%s\"} %d\n", sanitizeLabel(status), a.Executions[status])
	}

	if len(a.ByStep) == 0 {
		return
	}
	keys := make([]string, 0, len(a.ByStep))
	for key := range a.ByStep {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "# HELP testforge_step_requests_total Requests per suite step\n")
	fmt.Fprintf(w, "# TYPE testforge_step_requests_total counter\n")
	for _, key := range keys {
		sa := a.ByStep[key]
		fmt.Fprintf(w, "testforge_step_requests_total{suite=\"%s\",step=\"%s\"} %d\n", sanitizeLabel(sa.Suite), sanitizeLabel(sa.Step), sa.TotalRequests)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_step_failures_total Failures per suite step\n")
	fmt.Fprintf(w, "# TYPE testforge_step_failures_total counter\n")
	for _, key := range keys {
		sa := a.ByStep[key]
		fmt.Fprintf(w, "testforge_step_failures_total{suite=\"%s\",step=\"%s\"} %d\n", sanitizeLabel(sa.Suite), sanitizeLabel(sa.Step), sa.FailureCount)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP testforge_step_duration_avg_ms Average duration per suite step\n")
	fmt.Fprintf(w, "# TYPE testforge_step_duration_avg_ms gauge\n")
	for _, key := range keys {
		sa := a.ByStep[key]
		fmt.Fprintf(w, "testforge_step_duration_avg_ms{suite=\"%s\",step=\"%s\"} %.2f\n", sanitizeLabel(sa.Suite), sanitizeLabel(sa.Step), sa.AvgDurationMs)
	}
}

// sanitizeLabel makes a string safe for use as a Prometheus label value
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// writeFileAtomic keeps scrapers from reading a half written file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
