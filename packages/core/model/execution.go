package model

import "time"

// ExecutionStatus is the lifecycle state of an execution:
// PENDING -> RUNNING -> PASSED | FAILED | ERROR.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "PENDING"
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionPassed  ExecutionStatus = "PASSED"
	ExecutionFailed  ExecutionStatus = "FAILED"
	ExecutionError   ExecutionStatus = "ERROR"
)

// IsTerminal reports whether no further transition is expected.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionPassed || s == ExecutionFailed || s == ExecutionError
}

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepPassed StepStatus = "PASSED"
	StepFailed StepStatus = "FAILED"
)

// Execution is one run of a suite against one environment.
type Execution struct {
	ID            string            `json:"id"`
	SuiteID       string            `json:"testSuiteId"`
	EnvironmentID string            `json:"environmentId"`
	CredentialID  string            `json:"credentialId,omitempty"`
	Status        ExecutionStatus   `json:"status"`
	Variables     map[string]any    `json:"variables,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	Duration      int64             `json:"duration"`
	Summary       *ExecutionSummary `json:"summary,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// ExecutionSummary rolls up the step results of an execution. Duration is the
// sum of step durations in milliseconds, not the wall clock of the run.
type ExecutionSummary struct {
	Total    int   `json:"total"`
	Passed   int   `json:"passed"`
	Failed   int   `json:"failed"`
	Skipped  int   `json:"skipped"`
	Duration int64 `json:"duration"`
}

// ExecutionContext is the per-run state threaded through the steps. It is
// owned by exactly one run.
type ExecutionContext struct {
	ExecutionID   string
	SuiteID       string
	EnvironmentID string
	CredentialID  string
	BaseURL       string
	Variables     map[string]any
	Headers       map[string]string
}

// Merge folds extracted values into the context variables. Later writes win.
func (c *ExecutionContext) Merge(vars map[string]any) {
	if c.Variables == nil {
		c.Variables = make(map[string]any, len(vars))
	}
	for k, v := range vars {
		c.Variables[k] = v
	}
}

// RequestSnapshot is the resolved request a step actually sent. After a
// response it also carries the headers the client added, such as defaults and
// User-Agent. Headers added by the transport (Host, Accept-Encoding) are not
// recorded.
type RequestSnapshot struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
}

// ResponseSnapshot is the response a step received.
type ResponseSnapshot struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body"`
	Time       int64             `json:"time"`
}

// StepExecutionResult is produced exactly once per step. Response is nil when
// the request never returned; Error is set on transport or unexpected failures.
type StepExecutionResult struct {
	StepID             string             `json:"stepId"`
	StepName           string             `json:"stepName"`
	Status             StepStatus         `json:"status"`
	StartedAt          time.Time          `json:"startedAt"`
	CompletedAt        time.Time          `json:"completedAt"`
	Duration           int64              `json:"duration"`
	Request            RequestSnapshot    `json:"request"`
	Response           *ResponseSnapshot  `json:"response,omitempty"`
	Assertions         []*AssertionResult `json:"assertions"`
	ExtractedVariables map[string]any     `json:"extractedVariables"`
	Error              string             `json:"error,omitempty"`
}
