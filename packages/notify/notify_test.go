package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []*RunSummary
	err       error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(summary *RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
	return r.err
}

func (r *recordingNotifier) all() []*RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RunSummary(nil), r.summaries...)
}

func runExecution(m *Manager, id, suite string, status model.ExecutionStatus) {
	m.ExecutionStarted(id, &model.TestSuite{Name: suite})
	stepStatus := model.StepPassed
	if status != model.ExecutionPassed {
		stepStatus = model.StepFailed
	}
	m.StepCompleted(id, 0, &model.StepExecutionResult{
		StepName: "login",
		Status:   stepStatus,
		Assertions: []*model.AssertionResult{
			{Passed: stepStatus == model.StepPassed, Message: "expected status 200, got 500"},
		},
	})
	summary := &model.ExecutionSummary{Total: 1, Duration: 42}
	if stepStatus == model.StepPassed {
		summary.Passed = 1
	} else {
		summary.Failed = 1
	}
	m.ExecutionFinished(id, status, summary, nil)
}

func TestParseNotifyOn(t *testing.T) {
	on, err := ParseNotifyOn("")
	require.NoError(t, err)
	assert.Equal(t, NotifyFailure, on)

	on, err = ParseNotifyOn("Recovery")
	require.NoError(t, err)
	assert.Equal(t, NotifyRecovery, on)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

func TestManager_Policies(t *testing.T) {
	tests := []struct {
		name     string
		notifyOn NotifyOn
		statuses []model.ExecutionStatus
		want     []string
	}{
		{
			name:     "always",
			notifyOn: NotifyAlways,
			statuses: []model.ExecutionStatus{model.ExecutionPassed, model.ExecutionFailed},
			want:     []string{"PASSED", "FAILED"},
		},
		{
			name:     "failure",
			notifyOn: NotifyFailure,
			statuses: []model.ExecutionStatus{model.ExecutionPassed, model.ExecutionFailed, model.ExecutionError},
			want:     []string{"FAILED", "ERROR"},
		},
		{
			name:     "success",
			notifyOn: NotifySuccess,
			statuses: []model.ExecutionStatus{model.ExecutionFailed, model.ExecutionPassed},
			want:     []string{"PASSED"},
		},
		{
			name:     "recovery",
			notifyOn: NotifyRecovery,
			statuses: []model.ExecutionStatus{model.ExecutionPassed, model.ExecutionFailed, model.ExecutionPassed, model.ExecutionPassed},
			want:     []string{"FAILED", "PASSED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingNotifier{}
			m := NewManager(tt.notifyOn, nil, rec)
			for i, status := range tt.statuses {
				runExecution(m, string(rune('a'+i)), "smoke", status)
				require.NoError(t, m.Wait())
			}

			var got []string
			for _, s := range rec.all() {
				got = append(got, s.Status)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_RecoveryIsFlagged(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager(NotifyRecovery, nil, rec)

	runExecution(m, "1", "smoke", model.ExecutionFailed)
	runExecution(m, "2", "other", model.ExecutionPassed)
	require.NoError(t, m.Wait())
	runExecution(m, "3", "smoke", model.ExecutionPassed)
	require.NoError(t, m.Wait())

	all := rec.all()
	require.Len(t, all, 2)
	assert.False(t, all[0].IsRecovery)
	assert.True(t, all[1].IsRecovery)
	assert.Equal(t, "smoke", all[1].Suite)
}

func TestManager_SummaryCarriesFailures(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager(NotifyAlways, nil, rec)

	runExecution(m, "exec-1", "smoke", model.ExecutionFailed)
	require.NoError(t, m.Wait())

	all := rec.all()
	require.Len(t, all, 1)
	s := all[0]
	assert.Equal(t, "exec-1", s.ExecutionID)
	assert.Equal(t, 1, s.FailedSteps)
	assert.Equal(t, 42*time.Millisecond, s.Duration)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "login", s.Failures[0].Name)
	assert.Equal(t, []string{"expected status 200, got 500"}, s.Failures[0].Errors)
}

func TestManager_ErroredBeforeStart(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager(NotifyFailure, nil, rec)

	m.ExecutionFinished("x", model.ExecutionError, nil, errors.New("load suite: not found"))
	require.NoError(t, m.Wait())

	all := rec.all()
	require.Len(t, all, 1)
	assert.Equal(t, "load suite: not found", all[0].Error)
}

func TestManager_WaitReturnsDeliveryErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("boom")}
	m := NewManager(NotifyAlways, nil, rec)

	runExecution(m, "1", "smoke", model.ExecutionPassed)
	err := m.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording: boom")
	assert.NoError(t, m.Wait())
}

func TestSlackNotifier(t *testing.T) {
	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, WithSlackChannel("#qa"))
	err := n.Notify(&RunSummary{
		ExecutionID: "exec-1",
		Suite:       "smoke",
		Status:      "FAILED",
		TotalSteps:  2,
		FailedSteps: 1,
		Failures:    []FailedStep{{Name: "login", Errors: []string{"status mismatch"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "#qa", got.Channel)
	assert.Equal(t, "testforge", got.Username)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "danger", got.Attachments[0].Color)
	assert.Contains(t, got.Attachments[0].Title, "1 step(s) failed")
	assert.Contains(t, got.Attachments[0].Text, "`login`")
	assert.Contains(t, got.Attachments[0].Text, "status mismatch")
}

func TestSlackNotifier_RejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Notify(&RunSummary{Suite: "smoke", Status: "PASSED"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, nil).Notify(&RunSummary{
		ExecutionID: "exec-1",
		Suite:       "smoke",
		Status:      "PASSED",
		Duration:    1500 * time.Millisecond,
		DurationMs:  1500,
	})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", got["executionId"])
	assert.Equal(t, float64(1500), got["durationMs"])
	assert.NotContains(t, got, "duration")
}
