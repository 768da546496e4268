package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

var errNotFound = errors.New("not found")

// memStore is an in-memory implementation of every store interface.
type memStore struct {
	mu           sync.Mutex
	suites       map[string]*model.TestSuite
	environments map[string]*model.Environment
	credentials  map[string]*model.Credential
	executions   map[string]*model.Execution
	results      map[string][]*model.StepExecutionResult
	statusLog    map[string][]model.ExecutionStatus

	failStepResult error
}

func newMemStore() *memStore {
	return &memStore{
		suites:       map[string]*model.TestSuite{},
		environments: map[string]*model.Environment{},
		credentials:  map[string]*model.Credential{},
		executions:   map[string]*model.Execution{},
		results:      map[string][]*model.StepExecutionResult{},
		statusLog:    map[string][]model.ExecutionStatus{},
	}
}

func (m *memStore) LoadSuiteWithSteps(_ context.Context, id string) (*model.TestSuite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suites[id]
	if !ok {
		return nil, fmt.Errorf("suite %s: %w", id, errNotFound)
	}
	return s, nil
}

func (m *memStore) LoadEnvironment(_ context.Context, id string) (*model.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.environments[id]
	if !ok {
		return nil, fmt.Errorf("environment %s: %w", id, errNotFound)
	}
	return e, nil
}

func (m *memStore) ResolveCredential(_ context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", id, errNotFound)
	}
	return c, nil
}

func (m *memStore) CreateExecution(_ context.Context, exec *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.executions[exec.ID] = &cp
	m.statusLog[exec.ID] = append(m.statusLog[exec.ID], exec.Status)
	return nil
}

func (m *memStore) GetExecution(_ context.Context, id string) (*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, errNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) UpdateExecutionStatus(_ context.Context, id string, status model.ExecutionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return errNotFound
	}
	e.Status = status
	e.StartedAt = &at
	m.statusLog[id] = append(m.statusLog[id], status)
	return nil
}

func (m *memStore) CreateStepResult(_ context.Context, id string, r *model.StepExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStepResult != nil {
		return m.failStepResult
	}
	m.results[id] = append(m.results[id], r)
	return nil
}

func (m *memStore) FinalizeExecution(_ context.Context, id string, status model.ExecutionStatus, summary *model.ExecutionSummary, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return errNotFound
	}
	e.Status = status
	e.Summary = summary
	e.Duration = summary.Duration
	e.CompletedAt = &at
	m.statusLog[id] = append(m.statusLog[id], status)
	return nil
}

func (m *memStore) FailExecution(_ context.Context, id string, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return errNotFound
	}
	e.Status = model.ExecutionError
	e.Error = reason
	e.CompletedAt = &at
	m.statusLog[id] = append(m.statusLog[id], model.ExecutionError)
	return nil
}

func (m *memStore) ListUnfinished(_ context.Context) ([]*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Execution
	for _, e := range m.executions {
		if !e.Status.IsTerminal() {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) stepResults(id string) []*model.StepExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.StepExecutionResult(nil), m.results[id]...)
}

func (m *memStore) statuses(id string) []model.ExecutionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ExecutionStatus(nil), m.statusLog[id]...)
}
