package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/test", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "hello", "count": 2}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Send(context.Background(), NewRequest("GET", server.URL+"/test"))

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "application/json", resp.Headers["content-type"])
	assert.Equal(t, "a, b", resp.Headers["x-multi"])
	assert.Equal(t, map[string]any{"message": "hello", "count": float64(2)}, resp.Body)
}

func TestClient_SendJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`created`))
	}))
	defer server.Close()

	req := NewRequest("post", server.URL).SetBody(map[string]any{"name": "test"})
	resp, err := NewClient().Send(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "created", resp.Body)
}

func TestClient_SendRawStringBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req := NewRequest("PUT", server.URL).SetBody("plain").SetHeader("Content-Type", "text/plain")
	resp, err := NewClient().Send(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClient_ErrorStatusIsNotTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), NewRequest("GET", server.URL))

	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestClient_WithTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := client.Send(context.Background(), NewRequest("GET", server.URL))

	require.Error(t, err)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Contains(t, transportErr.Reason, "timeout")
	assert.GreaterOrEqual(t, transportErr.Elapsed, 50*time.Millisecond)
}

func TestClient_RequestTimeoutOverridesDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req := NewRequest("GET", server.URL).SetTimeout(20 * time.Millisecond)
	_, err := NewClient().Send(context.Background(), req)

	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient().Send(context.Background(), NewRequest("GET", url))

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.NotEmpty(t, transportErr.Reason)
}

func TestClient_WithDefaultHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "step-token", r.Header.Get("Authorization"))
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithDefaultHeaders(map[string]string{
		"Authorization": "default-token",
		"User-Agent":    "custom-agent",
	}))
	req := NewRequest("GET", server.URL).SetHeader("Authorization", "step-token")
	resp, err := client.Send(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClient_FollowsRedirects(t *testing.T) {
	redirectCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`final`))
			return
		}
		redirectCount++
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), NewRequest("GET", server.URL+"/redirect"))

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "final", resp.BodyString())
	assert.Equal(t, 1, redirectCount)
}

func TestClient_MaxRedirects(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Redirect(w, r, "/redirect", http.StatusFound)
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), NewRequest("GET", server.URL+"/redirect"))

	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
	// initial request plus five followed redirects
	assert.Equal(t, int32(DefaultMaxRedirects+1), atomic.LoadInt32(&hits))
}

func TestClient_WithRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(WithRateLimit(20))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), NewRequest("GET", server.URL))
		require.NoError(t, err)
	}
	// burst of one: the second and third calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "http://api.test/users", BuildURL("http://api.test/", "/users"))
	assert.Equal(t, "http://api.test/users", BuildURL("http://api.test", "users"))
	assert.Equal(t, "http://api.test/v1/users/1", BuildURL("http://api.test/v1", "/users/1"))
}

func TestMergeHeaders(t *testing.T) {
	merged := MergeHeaders(
		map[string]string{"Authorization": "Bearer a", "X-A": "1"},
		nil,
		map[string]string{"Authorization": "Bearer b"},
	)
	assert.Equal(t, map[string]string{"Authorization": "Bearer b", "X-A": "1"}, merged)
}

func TestMergeHeaders_IgnoresCase(t *testing.T) {
	for i := 0; i < 20; i++ {
		merged := MergeHeaders(
			map[string]string{"Authorization": "Bearer cred", "X-Api-Key": "k"},
			map[string]string{"authorization": "Bearer step"},
		)
		assert.Equal(t, map[string]string{"authorization": "Bearer step", "X-Api-Key": "k"}, merged)
	}
}

func TestClient_ReportsSentHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithDefaultHeaders(map[string]string{"X-Client": "cli"}))
	req := NewRequest("POST", server.URL).SetBody(map[string]any{"a": 1}).SetHeader("x-step", "1")
	resp, err := client.Send(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, resp.RequestHeaders["User-Agent"])
	assert.Equal(t, "cli", resp.RequestHeaders["X-Client"])
	assert.Equal(t, "1", resp.RequestHeaders["X-Step"])
	assert.Equal(t, "application/json", resp.RequestHeaders["Content-Type"])
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string
	}{
		{name: "valid http URL", url: "http://example.com/path"},
		{name: "valid https URL", url: "https://example.com/path"},
		{name: "invalid scheme", url: "ftp://example.com", wantErr: true, errMsg: "unsupported URL scheme"},
		{name: "missing scheme", url: "example.com/path", wantErr: true, errMsg: "unsupported URL scheme"},
		{name: "missing host", url: "http:///path", wantErr: true, errMsg: "URL must have a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResponse_IsJSON(t *testing.T) {
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/problem+json", true},
		{"text/html", false},
		{"", false},
	}

	for _, tt := range tests {
		resp := &Response{Headers: map[string]string{"content-type": tt.contentType}}
		assert.Equal(t, tt.expected, resp.IsJSON(), "Content-Type: %s", tt.contentType)
	}
}

func TestResponse_NonJSONBodyStaysRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"looks":"like json"}`))
	}))
	defer server.Close()

	resp, err := NewClient().Send(context.Background(), NewRequest("GET", server.URL))

	require.NoError(t, err)
	assert.Equal(t, `{"looks":"like json"}`, resp.Body)
}
