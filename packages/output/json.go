package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Suite     string                       `json:"suite"`
	Execution *model.Execution             `json:"execution,omitempty"`
	Summary   model.ExecutionSummary       `json:"summary"`
	Latency   *Latency                     `json:"latency,omitempty"`
	Steps     []*model.StepExecutionResult `json:"steps"`
	Error     string                       `json:"error,omitempty"`
}

// JSONFormatter formats an execution report as one indented JSON document
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		if w != nil {
			f.writer = w
		}
	}
}

func (f *JSONFormatter) Format(report *Report) error {
	steps := report.Steps
	if steps == nil {
		steps = []*model.StepExecutionResult{}
	}
	out := JSONOutput{
		Suite:     report.SuiteName,
		Execution: report.Execution,
		Summary:   report.Summary(),
		Steps:     steps,
	}
	if lat, ok := StepLatency(report.Steps); ok {
		out.Latency = &lat
	}
	return f.encode(out)
}

// FormatError writes a document carrying only the error, so consumers always
// receive JSON.
func (f *JSONFormatter) FormatError(err error) {
	_ = f.encode(JSONOutput{Steps: []*model.StepExecutionResult{}, Error: err.Error()})
}

func (f *JSONFormatter) encode(out JSONOutput) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(out)
}
