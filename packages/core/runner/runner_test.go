package runner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	tfhttp "github.com/abdul-hamid-achik/testforge/packages/http"
	"github.com/abdul-hamid-achik/testforge/packages/redact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execContext(baseURL string, vars map[string]any) *model.ExecutionContext {
	return &model.ExecutionContext{
		ExecutionID: "exec-1",
		BaseURL:     baseURL,
		Variables:   vars,
		Headers:     map[string]string{},
	}
}

func TestNewRunner(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		r := NewRunner(nil)
		assert.NotNil(t, r.client)
		assert.NotNil(t, r.logger)
		assert.True(t, r.redact.Enabled)
	})

	t.Run("with redaction disabled", func(t *testing.T) {
		off := redact.Disabled()
		r := NewRunner(&Config{Redact: &off})
		assert.False(t, r.redact.Enabled)
	})
}

func TestRunner_RunStep_SubstitutesAndAsserts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/users/42/orders", r.URL.Path)
		assert.Equal(t, "tenant-a", r.Header.Get("X-Tenant"))

		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(raw, &payload))
		assert.Equal(t, "alice", payload["owner"])

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Order-Id", "o-9")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order": {"id": "o-9", "items": [{"sku": "a"}, {"sku": "b"}]}}`))
	}))
	defer server.Close()

	step := &model.TestStep{
		ID:       "s1",
		Name:     "create order",
		Method:   "post",
		Endpoint: "users/{{userId}}/orders",
		Headers:  map[string]string{"X-Tenant": "{{tenant}}"},
		Body:     map[string]any{"owner": "{{owner}}"},
		Assertions: []*model.Assertion{
			{Type: model.AssertStatus, Operator: model.OpEquals, Value: 201},
			{Type: model.AssertBody, Field: "order.items", Operator: model.OpContains, Value: map[string]any{"sku": "b"}},
		},
		ExtractVariables: []*model.VariableExtractor{
			{Name: "orderId", Source: model.SourceBody, Path: "order.id"},
			{Name: "secondSku", Source: model.SourceBody, Path: "order.items[1].sku"},
			{Name: "headerId", Source: model.SourceHeader, Path: "X-Order-Id"},
		},
	}
	vars := map[string]any{"userId": float64(42), "tenant": "tenant-a", "owner": "alice"}

	result := NewRunner(nil).RunStep(context.Background(), step, execContext(server.URL+"/", vars))

	assert.Equal(t, model.StepPassed, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, "POST", result.Request.Method)
	assert.Equal(t, server.URL+"/users/42/orders", result.Request.URL)
	require.NotNil(t, result.Response)
	assert.Equal(t, 201, result.Response.Status)
	assert.Len(t, result.Assertions, 2)
	assert.Equal(t, map[string]any{"orderId": "o-9", "secondSku": "b", "headerId": "o-9"}, result.ExtractedVariables)
	assert.GreaterOrEqual(t, result.Duration, int64(0))
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
	assert.Equal(t, float64(42), vars["userId"], "context variables are not modified")
	assert.NotContains(t, vars, "orderId")
}

func TestRunner_RunStep_FailedAssertion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	step := &model.TestStep{
		Name:     "missing",
		Method:   "GET",
		Endpoint: "/missing",
		Assertions: []*model.Assertion{
			{Type: model.AssertStatus, Operator: model.OpEquals, Value: 200},
			{Type: model.AssertStatus, Operator: model.OpLessThan, Value: 500},
		},
	}

	result := NewRunner(nil).RunStep(context.Background(), step, execContext(server.URL, nil))

	assert.Equal(t, model.StepFailed, result.Status)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.Response)
	assert.Equal(t, 404, result.Response.Status)
	assert.False(t, result.Assertions[0].Passed)
	assert.True(t, result.Assertions[1].Passed)
}

func TestRunner_RunStep_TransportFailureSkipsAssertions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	step := &model.TestStep{
		Name:             "unreachable",
		Method:           "GET",
		Endpoint:         "/health",
		Assertions:       []*model.Assertion{{Type: model.AssertStatus, Operator: model.OpEquals, Value: 200}},
		ExtractVariables: []*model.VariableExtractor{{Name: "x", Source: model.SourceBody}},
	}

	result := NewRunner(nil).RunStep(context.Background(), step, execContext(baseURL, nil))

	assert.Equal(t, model.StepFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.Response)
	assert.Empty(t, result.Assertions)
	assert.Empty(t, result.ExtractedVariables)
}

func TestRunner_RunStep_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
	}))
	defer server.Close()

	r := NewRunner(&Config{ClientOptions: []tfhttp.ClientOption{tfhttp.WithTimeout(30 * time.Millisecond)}})
	result := r.RunStep(context.Background(), &model.TestStep{Name: "slow", Method: "GET", Endpoint: "/"}, execContext(server.URL, nil))

	assert.Equal(t, model.StepFailed, result.Status)
	assert.Contains(t, result.Error, "timeout")
}

func TestRunner_RunStep_CredentialHeadersAndRedaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer step-override", r.Header.Get("Authorization"))
		assert.Equal(t, "key-123456", r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	execCtx := execContext(server.URL, nil)
	execCtx.Headers = map[string]string{"Authorization": "Bearer cred-token", "X-API-Key": "key-123456"}
	step := &model.TestStep{
		Name:     "auth",
		Method:   "GET",
		Endpoint: "/me",
		Headers:  map[string]string{"Authorization": "Bearer step-override", "Accept": "application/json"},
	}

	result := NewRunner(nil).RunStep(context.Background(), step, execCtx)
	assert.Equal(t, model.StepPassed, result.Status)
	assert.Equal(t, redact.Mask, result.Request.Headers["Authorization"])
	assert.Equal(t, redact.Mask, result.Request.Headers["X-API-Key"])
	assert.Equal(t, "application/json", result.Request.Headers["Accept"])

	off := redact.Disabled()
	result = NewRunner(&Config{Redact: &off}).RunStep(context.Background(), step, execCtx)
	assert.Equal(t, "Bearer step-override", result.Request.Headers["Authorization"])
	assert.Equal(t, "key-123456", result.Request.Headers["X-API-Key"])
}

func TestRunner_RunStep_LowerCaseStepHeaderWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"Bearer step"}, r.Header.Values("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	execCtx := execContext(server.URL, nil)
	execCtx.Headers = map[string]string{"Authorization": "Bearer cred"}
	step := &model.TestStep{
		Name:     "override",
		Method:   "GET",
		Endpoint: "/",
		Headers:  map[string]string{"authorization": "Bearer step"},
	}

	off := redact.Disabled()
	runner := NewRunner(&Config{Redact: &off})
	for i := 0; i < 50; i++ {
		result := runner.RunStep(context.Background(), step, execCtx)
		require.Equal(t, model.StepPassed, result.Status)
		assert.Equal(t, "Bearer step", result.Request.Headers["authorization"])
		_, hasCredentialSpelling := result.Request.Headers["Authorization"]
		assert.False(t, hasCredentialSpelling)
	}
}

func TestRunner_RunStep_SubstitutesAssertionValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "u1", "owner": {"name": "ada"}}`))
	}))
	defer server.Close()

	step := &model.TestStep{
		Name:     "user",
		Method:   "GET",
		Endpoint: "/users/{{userId}}",
		Assertions: []*model.Assertion{
			{Type: model.AssertBody, Field: "id", Operator: model.OpEquals, Value: "{{userId}}"},
			{Type: model.AssertBody, Field: "{{ownerField}}", Operator: model.OpEquals, Value: "ada"},
			{Type: model.AssertBody, Operator: model.OpEquals, Value: map[string]any{"id": "{{userId}}", "owner": map[string]any{"name": "ada"}}},
		},
	}
	vars := map[string]any{"userId": "u1", "ownerField": "owner.name"}

	result := NewRunner(nil).RunStep(context.Background(), step, execContext(server.URL, vars))

	assert.Equal(t, model.StepPassed, result.Status, result.Assertions)
	require.Len(t, result.Assertions, 3)
	assert.Equal(t, "u1", result.Assertions[0].Expected)
	assert.Equal(t, "owner.name", result.Assertions[1].Field)
	assert.Equal(t, "{{userId}}", step.Assertions[0].Value)
	assert.Equal(t, "{{ownerField}}", step.Assertions[1].Field)
}

func TestRunner_RunStep_SnapshotIncludesClientHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	runner := NewRunner(&Config{ClientOptions: []tfhttp.ClientOption{
		tfhttp.WithUserAgent("testforge-test"),
		tfhttp.WithDefaultHeaders(map[string]string{"X-Client": "cli", "Accept": "*/*"}),
	}})
	step := &model.TestStep{
		Name:     "defaults",
		Method:   "GET",
		Endpoint: "/",
		Headers:  map[string]string{"accept": "application/json"},
	}

	result := runner.RunStep(context.Background(), step, execContext(server.URL, nil))

	require.Equal(t, model.StepPassed, result.Status)
	assert.Equal(t, "testforge-test", result.Request.Headers["User-Agent"])
	assert.Equal(t, "cli", result.Request.Headers["X-Client"])
	assert.Equal(t, "application/json", result.Request.Headers["accept"])
	_, duplicated := result.Request.Headers["Accept"]
	assert.False(t, duplicated)
}

type panickingSender struct{}

func (panickingSender) Send(context.Context, *tfhttp.Request) (*tfhttp.Response, error) {
	panic("boom")
}

func TestRunner_RunStep_RecoversPanics(t *testing.T) {
	r := NewRunner(&Config{Client: panickingSender{}})

	result := r.RunStep(context.Background(), &model.TestStep{ID: "s", Name: "p", Method: "GET", Endpoint: "/"}, execContext("http://unused", nil))

	assert.Equal(t, model.StepFailed, result.Status)
	assert.Equal(t, "panic: boom", result.Error)
	assert.Nil(t, result.Response)
	assert.False(t, result.CompletedAt.IsZero())
}

func TestFailedResult(t *testing.T) {
	start := time.Now().Add(-5 * time.Millisecond)
	result := FailedResult(&model.TestStep{ID: "s", Name: "n", Method: "delete"}, start, "exploded")

	assert.Equal(t, model.StepFailed, result.Status)
	assert.Equal(t, "DELETE", result.Request.Method)
	assert.Equal(t, "exploded", result.Error)
	assert.GreaterOrEqual(t, result.Duration, int64(5))
}
