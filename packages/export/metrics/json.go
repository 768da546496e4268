package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// JSONExporter exports metrics to JSON format
type JSONExporter struct {
	writer    io.Writer
	filePath  string
	pretty    bool
	startTime time.Time
	now       func() time.Time
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty enables pretty-printed JSON output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		startTime: time.Now(),
		pretty:    true,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata JSONMetadata      `json:"metadata"`
	Summary  *AggregateMetrics `json:"summary"`
	Steps    []*StepMetrics    `json:"steps"`
}

// JSONMetadata contains metadata about the metrics collection
type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
}

// Export exports aggregated metrics to JSON
func (j *JSONExporter) Export(aggregate *AggregateMetrics, steps []*StepMetrics) error {
	endTime := j.now()
	if steps == nil {
		steps = []*StepMetrics{}
	}

	output := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: endTime.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			Duration:    endTime.Sub(j.startTime).Round(time.Millisecond).String(),
		},
		Summary: aggregate,
		Steps:   steps,
	}

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(output, "", "  ")
	} else {
		data, err = json.Marshal(output)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	if j.writer != nil {
		if _, err := j.writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}
