package output

import (
	"fmt"
	"io"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

// Report is a finished execution with its step results in run order.
type Report struct {
	SuiteName string
	Execution *model.Execution
	Steps     []*model.StepExecutionResult
}

// Summary returns the stored summary, or one computed from the steps when
// the execution never finalized.
func (r *Report) Summary() model.ExecutionSummary {
	if r.Execution != nil && r.Execution.Summary != nil {
		return *r.Execution.Summary
	}
	var s model.ExecutionSummary
	for _, step := range r.Steps {
		s.Total++
		if step.Status == model.StepPassed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.Duration += step.Duration
	}
	return s
}

func (r *Report) Status() model.ExecutionStatus {
	if r.Execution == nil {
		return ""
	}
	return r.Execution.Status
}

type Formatter interface {
	Format(report *Report) error
	FormatError(err error)
}

// Formats lists the names accepted by New.
var Formats = []string{"console", "json", "junit"}

// New returns the formatter registered under format.
func New(format string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	}
	return nil, fmt.Errorf("unknown output format %q (want one of %v)", format, Formats)
}
