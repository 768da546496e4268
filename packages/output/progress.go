package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/fatih/color"
)

// Progress prints a line per step as executions advance. It is safe for
// concurrent executions; lines are prefixed with a short execution ID when
// more than one run is in flight.
type Progress struct {
	mu     sync.Mutex
	writer io.Writer
	active map[string]int
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{writer: w, active: make(map[string]int)}
}

func (p *Progress) ExecutionStarted(executionID string, suite *model.TestSuite) {
	p.mu.Lock()
	defer p.mu.Unlock()
	steps := 0
	name := ""
	if suite != nil {
		steps = len(suite.Steps)
		name = suite.Name
	}
	p.active[executionID] = steps
	fmt.Fprintf(p.writer, "%s%s (%d steps)\n", p.prefix(executionID), color.New(color.Bold).Sprint(name), steps)
}

func (p *Progress) StepCompleted(executionID string, index int, result *model.StepExecutionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark := color.GreenString("✓")
	if result.Status != model.StepPassed {
		mark = color.RedString("✗")
	}
	fmt.Fprintf(p.writer, "%s[%d/%d] %s %s (%dms)\n",
		p.prefix(executionID), index+1, p.active[executionID], mark, result.StepName, result.Duration)
}

func (p *Progress) ExecutionFinished(executionID string, status model.ExecutionStatus, _ *model.ExecutionSummary, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		fmt.Fprintf(p.writer, "%s%s %v\n", p.prefix(executionID), color.RedString(string(status)), err)
	}
	delete(p.active, executionID)
}

func (p *Progress) prefix(executionID string) string {
	if len(p.active) <= 1 {
		return ""
	}
	short := executionID
	if len(short) > 8 {
		short = short[:8]
	}
	return "[" + short + "] "
}
