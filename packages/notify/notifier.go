// Package notify posts execution results to chat webhooks.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"go.uber.org/zap"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every execution
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when an execution does not pass
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when an execution passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failures and when a suite passes
	// again after failing
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name. Empty means failure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch on := NotifyOn(strings.ToLower(strings.TrimSpace(s))); on {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return on, nil
	}
	return "", fmt.Errorf("unknown notify policy %q (want always, failure, success or recovery)", s)
}

// RunSummary is what a notifier reports about one finished execution.
type RunSummary struct {
	ExecutionID  string        `json:"executionId"`
	Suite        string        `json:"suite"`
	Status       string        `json:"status"`
	TotalSteps   int           `json:"totalSteps"`
	PassedSteps  int           `json:"passedSteps"`
	FailedSteps  int           `json:"failedSteps"`
	SkippedSteps int           `json:"skippedSteps"`
	Duration     time.Duration `json:"-"`
	DurationMs   int64         `json:"durationMs"`
	Error        string        `json:"error,omitempty"`
	Failures     []FailedStep  `json:"failures,omitempty"`
	IsRecovery   bool          `json:"isRecovery,omitempty"`
}

// Passed reports whether the execution passed.
func (s *RunSummary) Passed() bool {
	return s.Status == string(model.ExecutionPassed)
}

// FailedStep represents a failed step for notifications
type FailedStep struct {
	Name   string   `json:"name"`
	Errors []string `json:"errors,omitempty"`
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about one execution
	Notify(summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

type pending struct {
	suite    string
	failures []FailedStep
}

// Manager applies the policy and fans each summary out to its notifiers. It
// observes executions; deliveries run in the background until Wait.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	logger    *zap.Logger

	mu        sync.Mutex
	running   map[string]*pending
	lastState map[string]bool // suite name -> last run passed
	wg        sync.WaitGroup
	errs      []error
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, logger *zap.Logger, notifiers ...Notifier) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		logger:    logger,
		running:   make(map[string]*pending),
		lastState: make(map[string]bool),
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

func (m *Manager) ExecutionStarted(executionID string, suite *model.TestSuite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &pending{}
	if suite != nil {
		p.suite = suite.Name
	}
	m.running[executionID] = p
}

func (m *Manager) StepCompleted(executionID string, _ int, result *model.StepExecutionResult) {
	if result.Status == model.StepPassed {
		return
	}
	failed := FailedStep{Name: result.StepName}
	if result.Error != "" {
		failed.Errors = append(failed.Errors, result.Error)
	}
	for _, a := range result.Assertions {
		if !a.Passed {
			failed.Errors = append(failed.Errors, a.Message)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.running[executionID]; ok {
		p.failures = append(p.failures, failed)
	}
}

func (m *Manager) ExecutionFinished(executionID string, status model.ExecutionStatus, summary *model.ExecutionSummary, err error) {
	m.mu.Lock()
	p := m.running[executionID]
	delete(m.running, executionID)
	if p == nil {
		// errored before it started; there is no suite to attribute it to
		p = &pending{}
	}

	rs := &RunSummary{
		ExecutionID: executionID,
		Suite:       p.suite,
		Status:      string(status),
		Failures:    p.failures,
	}
	if summary != nil {
		rs.TotalSteps = summary.Total
		rs.PassedSteps = summary.Passed
		rs.FailedSteps = summary.Failed
		rs.SkippedSteps = summary.Skipped
		rs.Duration = time.Duration(summary.Duration) * time.Millisecond
		rs.DurationMs = summary.Duration
	}
	if err != nil {
		rs.Error = err.Error()
	}

	send := m.shouldNotify(rs)
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.Unlock()

	if !send {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.deliver(notifiers, rs)
	}()
}

// shouldNotify applies the policy and records the suite's state. Callers hold mu.
func (m *Manager) shouldNotify(rs *RunSummary) bool {
	passed := rs.Passed()
	previous, seen := m.lastState[rs.Suite]
	m.lastState[rs.Suite] = passed

	switch m.notifyOn {
	case NotifyAlways:
		return true
	case NotifySuccess:
		return passed
	case NotifyRecovery:
		if seen && !previous && passed {
			rs.IsRecovery = true
			return true
		}
		return !passed
	default:
		return !passed
	}
}

func (m *Manager) deliver(notifiers []Notifier, rs *RunSummary) {
	for _, n := range notifiers {
		if err := n.Notify(rs); err != nil {
			m.logger.Warn("notification failed",
				zap.String("notifier", n.Name()),
				zap.String("executionID", rs.ExecutionID),
				zap.Error(err))
			m.mu.Lock()
			m.errs = append(m.errs, fmt.Errorf("%s: %w", n.Name(), err))
			m.mu.Unlock()
			continue
		}
		m.logger.Debug("notification sent", zap.String("notifier", n.Name()), zap.String("executionID", rs.ExecutionID))
	}
}

// Wait blocks until every queued delivery has finished and returns the
// delivery failures seen so far.
func (m *Manager) Wait() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	err := errors.Join(m.errs...)
	m.errs = nil
	return err
}
