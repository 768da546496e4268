package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/execution"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ execution.TriggerStore = (*Store)(nil)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_ConnectionForms(t *testing.T) {
	dir := t.TempDir()
	for _, connStr := range []string{
		"sqlite://" + filepath.Join(dir, "a.db"),
		"sqlite:" + filepath.Join(dir, "b.db"),
		filepath.Join(dir, "c.db"),
		MemoryDSN,
		"",
	} {
		s, err := Open(context.Background(), connStr)
		require.NoError(t, err, connStr)
		require.NoError(t, s.Close())
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := "sqlite://" + filepath.Join(t.TempDir(), "forge.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreateEnvironment(ctx, &model.Environment{ID: "env-1", Name: "staging", BaseURL: "http://api.test"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	env, err := s.LoadEnvironment(ctx, "env-1")
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", env.BaseURL)
}

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{in: "", want: ":memory:?_foreign_keys=on&_busy_timeout=5000"},
		{in: "sqlite:///tmp/x.db", want: "/tmp/x.db?_foreign_keys=on&_busy_timeout=5000"},
		{in: "sqlite:x.db", want: "x.db?_foreign_keys=on&_busy_timeout=5000"},
		{in: "x.db?cache=shared", want: "x.db?cache=shared&_foreign_keys=on&_busy_timeout=5000"},
		{in: "postgres://localhost/db", wantErr: "unsupported database scheme: postgres"},
		{in: "sqlite://", wantErr: "database path is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseConnectionString(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuite_RoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	suite := &model.TestSuite{Name: "users", Steps: []*model.TestStep{
		{Name: "third", Order: 2, Method: "GET", Endpoint: "/c"},
		{
			Name: "first", Order: 1, Method: "POST", Endpoint: "/a",
			Headers:    map[string]string{"X-Trace": "{{trace}}"},
			Body:       map[string]any{"name": "Ada", "tags": []any{"x"}},
			Assertions: []*model.Assertion{{Type: model.AssertStatus, Operator: model.OpEquals, Value: 201}},
			ExtractVariables: []*model.VariableExtractor{
				{Name: "id", Source: model.SourceBody, Path: "id"},
			},
		},
		{Name: "second", Order: 1, Method: "GET", Endpoint: "/b"},
	}}
	require.NoError(t, s.CreateSuite(ctx, suite))
	require.NotEmpty(t, suite.ID)
	for _, step := range suite.Steps {
		assert.NotEmpty(t, step.ID)
		assert.Equal(t, suite.ID, step.SuiteID)
	}

	loaded, err := s.LoadSuiteWithSteps(ctx, suite.ID)
	require.NoError(t, err)
	assert.Equal(t, "users", loaded.Name)
	require.Len(t, loaded.Steps, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{loaded.Steps[0].Name, loaded.Steps[1].Name, loaded.Steps[2].Name})

	first := loaded.Steps[0]
	assert.Equal(t, map[string]string{"X-Trace": "{{trace}}"}, first.Headers)
	assert.Equal(t, map[string]any{"name": "Ada", "tags": []any{"x"}}, first.Body)
	require.Len(t, first.Assertions, 1)
	assert.Equal(t, model.AssertStatus, first.Assertions[0].Type)
	assert.Equal(t, float64(201), first.Assertions[0].Value)
	require.Len(t, first.ExtractVariables, 1)
	assert.Equal(t, "id", first.ExtractVariables[0].Path)
	assert.Nil(t, loaded.Steps[1].Body)
}

func TestAddStep(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	suite := &model.TestSuite{Name: "empty"}
	require.NoError(t, s.CreateSuite(ctx, suite))
	require.NoError(t, s.AddStep(ctx, suite.ID, &model.TestStep{Name: "ping", Method: "GET", Endpoint: "/ping"}))

	loaded, err := s.LoadSuiteWithSteps(ctx, suite.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "ping", loaded.Steps[0].Name)

	err = s.AddStep(ctx, "missing", &model.TestStep{Name: "x", Method: "GET", Endpoint: "/"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNotFound(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.LoadSuiteWithSteps(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadEnvironment(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ResolveCredential(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetExecution(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateExecutionStatus(ctx, "nope", model.ExecutionRunning, time.Now()), ErrNotFound)
	assert.ErrorIs(t, s.FailExecution(ctx, "nope", "boom", time.Now()), ErrNotFound)
	assert.ErrorIs(t, s.FinalizeExecution(ctx, "nope", model.ExecutionPassed, nil, time.Now()), ErrNotFound)
}

func TestCredential_RoundTrip(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	cred := &model.Credential{Name: "svc", Type: model.CredentialCustomHeaders, Data: map[string]any{
		"headers": map[string]any{"X-Tenant": "acme"},
	}}
	require.NoError(t, s.CreateCredential(ctx, cred))

	loaded, err := s.ResolveCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialCustomHeaders, loaded.Type)
	assert.Equal(t, "svc", loaded.Name)
	assert.Equal(t, map[string]any{"X-Tenant": "acme"}, loaded.Data["headers"])
}

func TestExecution_Lifecycle(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateExecution(ctx, &model.Execution{
		ID: "exec-1", SuiteID: "suite-1", EnvironmentID: "env-1",
		Variables: map[string]any{"username": "ada"}, CreatedAt: created,
	}))

	exec, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionPending, exec.Status)
	assert.True(t, exec.CreatedAt.Equal(created))
	assert.Nil(t, exec.StartedAt)
	assert.Equal(t, map[string]any{"username": "ada"}, exec.Variables)

	started := created.Add(time.Second)
	require.NoError(t, s.UpdateExecutionStatus(ctx, "exec-1", model.ExecutionRunning, started))

	result := &model.StepExecutionResult{
		StepID: "s1", StepName: "login", Status: model.StepFailed,
		StartedAt: started, CompletedAt: started.Add(40 * time.Millisecond), Duration: 40,
		Request: model.RequestSnapshot{Method: "POST", URL: "http://api.test/login", Headers: map[string]string{}},
		Response: &model.ResponseSnapshot{
			Status: 401, Headers: map[string]string{"content-type": "application/json"},
			Body: map[string]any{"error": "denied"}, Time: 35,
		},
		Assertions: []*model.AssertionResult{{
			Type: model.AssertStatus, Operator: model.OpEquals, Expected: float64(200), Actual: float64(401),
			Message: "✗ status equals 200 (actual: 401)",
		}},
		ExtractedVariables: map[string]any{},
	}
	require.NoError(t, s.CreateStepResult(ctx, "exec-1", result))
	require.NoError(t, s.CreateStepResult(ctx, "exec-1", &model.StepExecutionResult{
		StepID: "s2", StepName: "profile", Status: model.StepFailed,
		StartedAt: started, CompletedAt: started, Error: "connection refused",
	}))

	summary := &model.ExecutionSummary{Total: 2, Failed: 2, Duration: 40}
	completed := started.Add(time.Second)
	require.NoError(t, s.FinalizeExecution(ctx, "exec-1", model.ExecutionFailed, summary, completed))

	exec, err = s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionFailed, exec.Status)
	require.NotNil(t, exec.StartedAt)
	assert.True(t, exec.StartedAt.Equal(started))
	require.NotNil(t, exec.CompletedAt)
	assert.True(t, exec.CompletedAt.Equal(completed))
	assert.Equal(t, int64(40), exec.Duration)
	assert.Equal(t, summary, exec.Summary)

	results, err := s.ListStepResults(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "login", results[0].StepName)
	require.NotNil(t, results[0].Response)
	assert.Equal(t, 401, results[0].Response.Status)
	require.Len(t, results[0].Assertions, 1)
	assert.Equal(t, "✗ status equals 200 (actual: 401)", results[0].Assertions[0].Message)
	assert.Nil(t, results[1].Response)
	assert.Empty(t, results[1].Assertions)
	assert.Equal(t, map[string]any{}, results[1].ExtractedVariables)
	assert.Equal(t, "connection refused", results[1].Error)
}

func TestStepResult_UnknownAssertionTypeStillLoads(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.CreateExecution(ctx, &model.Execution{ID: "exec-1", SuiteID: "a", EnvironmentID: "b"}))
	require.NoError(t, s.CreateStepResult(ctx, "exec-1", &model.StepExecutionResult{
		StepName: "odd", Status: model.StepFailed,
		Assertions: []*model.AssertionResult{{Type: "cookie", Operator: "equals", Message: "Error: unknown assertion type"}},
	}))

	results, err := s.ListStepResults(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.AssertionType("cookie"), results[0].Assertions[0].Type)
}

func TestFailExecution(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.CreateExecution(ctx, &model.Execution{ID: "exec-1", SuiteID: "a", EnvironmentID: "b"}))
	require.NoError(t, s.FailExecution(ctx, "exec-1", "suite not found", time.Now()))

	exec, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionError, exec.Status)
	assert.Equal(t, "suite not found", exec.Error)
	assert.NotNil(t, exec.CompletedAt)
}

func TestListExecutions(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []model.ExecutionStatus{model.ExecutionPassed, model.ExecutionRunning, model.ExecutionPending} {
		require.NoError(t, s.CreateExecution(ctx, &model.Execution{
			ID: string(rune('a' + i)), SuiteID: "s", EnvironmentID: "e",
			Status: status, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListExecutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	limited, err := s.ListExecutions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	unfinished, err := s.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	assert.Equal(t, "b", unfinished[0].ID)
	assert.Equal(t, "c", unfinished[1].ID)
}

func TestStore_DrivesDispatcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-9"})
		case "/me":
			if r.Header.Get("Authorization") != "Bearer tok-9" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "Ada"})
		}
	}))
	defer server.Close()

	s := openMemory(t)
	ctx := context.Background()
	suite := &model.TestSuite{Name: "auth", Steps: []*model.TestStep{
		{
			Name: "login", Order: 1, Method: "POST", Endpoint: "/login",
			Assertions:       []*model.Assertion{{Type: model.AssertStatus, Operator: model.OpEquals, Value: 200}},
			ExtractVariables: []*model.VariableExtractor{{Name: "token", Source: model.SourceBody, Path: "token"}},
		},
		{
			Name: "me", Order: 2, Method: "GET", Endpoint: "/me",
			Headers:    map[string]string{"Authorization": "Bearer {{token}}"},
			Assertions: []*model.Assertion{{Type: model.AssertBody, Field: "name", Operator: model.OpEquals, Value: "Ada"}},
		},
	}}
	require.NoError(t, s.CreateSuite(ctx, suite))
	env := &model.Environment{Name: "local", BaseURL: server.URL}
	require.NoError(t, s.CreateEnvironment(ctx, env))

	d := execution.NewDispatcher(execution.DispatcherConfig{
		Workers:      1,
		Suites:       s,
		Environments: s,
		Credentials:  s,
		Executions:   s,
		Runner:       execution.NewOrchestrator(s, s, s, execution.WithCredentialResolver(s)),
	})
	d.Start(ctx)
	defer func() { _ = d.Shutdown(ctx) }()

	id, err := d.Trigger(ctx, execution.TriggerRequest{SuiteID: suite.ID, EnvironmentID: env.ID})
	require.NoError(t, err)

	exec, err := d.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionPassed, exec.Status)
	require.NotNil(t, exec.Summary)
	assert.Equal(t, 2, exec.Summary.Passed)

	results, err := s.ListStepResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "tok-9", results[0].ExtractedVariables["token"])
	assert.Equal(t, "[REDACTED]", results[1].Request.Headers["Authorization"])
}
