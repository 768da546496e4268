package notify

import (
	"net/http"
	"time"
)

// WebhookNotifier posts the RunSummary as JSON to an arbitrary endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) Notify(summary *RunSummary) error {
	return postJSON(w.client, w.url, summary)
}
