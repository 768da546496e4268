package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	now        func() time.Time
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackHTTPClient replaces the webhook client
func WithSlackHTTPClient(client *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = client
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "testforge",
		iconEmoji:  ":test_tube:",
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the name of the notifier
func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(summary *RunSummary) error {
	color := "good"
	title := fmt.Sprintf(":white_check_mark: %s passed", summary.Suite)

	switch {
	case summary.IsRecovery:
		title = fmt.Sprintf(":tada: %s recovered", summary.Suite)
	case summary.Status == "ERROR":
		color = "danger"
		title = fmt.Sprintf(":boom: %s errored", summary.Suite)
	case !summary.Passed():
		color = "danger"
		title = fmt.Sprintf(":x: %s: %d step(s) failed", summary.Suite, summary.FailedSteps)
	}

	fields := []slackField{
		{Title: "Steps", Value: fmt.Sprintf("%d", summary.TotalSteps), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.PassedSteps), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.FailedSteps), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
		{Title: "Execution", Value: summary.ExecutionID, Short: false},
	}

	var text strings.Builder
	if summary.Error != "" {
		fmt.Fprintf(&text, "*Error:* %s\n", summary.Error)
	}
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed steps:*\n")
		for _, fs := range summary.Failures {
			fmt.Fprintf(&text, "• `%s`\n", fs.Name)
			for _, err := range fs.Errors {
				fmt.Fprintf(&text, "  - %s\n", err)
			}
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  title,
			Text:   text.String(),
			Fields: fields,
			Footer: "testforge",
			TS:     s.now().Unix(),
		}},
	}

	return postJSON(s.client, s.webhookURL, msg)
}

// postJSON posts v and treats any 2xx as delivered.
func postJSON(client *http.Client, url string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
