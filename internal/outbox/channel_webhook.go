package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookChannel is a generic JSON-webhook delivery Channel (url +
// http.Client + JSON payload), deliberately left generic rather than tied
// to one webhook vendor's embed format since concrete channel wire formats
// are an external concern.
type WebhookChannel struct {
	URL    string
	Client *http.Client
}

// NewWebhookChannel constructs a webhook channel with a bounded-timeout
// http.Client.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

type webhookPayload struct {
	AlertID   string   `json:"alert_id"`
	RuleID    string   `json:"rule_id"`
	Token     string   `json:"token"`
	Severity  string   `json:"severity"`
	Message   string   `json:"message"`
	Channels  []string `json:"channels"`
	DedupeKey string   `json:"dedupe_key"`
}

// Send posts the rendered alert as a JSON body. Non-2xx responses and
// transport errors both count as delivery failure, triggering the
// dispatcher's backoff-and-retry path.
func (w *WebhookChannel) Send(ctx context.Context, e Entry) error {
	body, err := json.Marshal(webhookPayload{
		AlertID:   e.AlertID,
		RuleID:    e.RuleID,
		Token:     e.Token,
		Severity:  e.Severity,
		Message:   e.RenderedMessage,
		Channels:  e.Channels,
		DedupeKey: e.DedupeKey,
	})
	if err != nil {
		return fmt.Errorf("outbox: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("outbox: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("outbox: webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("outbox: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogChannel delivers by logging, used for channel types with no external
// endpoint configured (e.g. a "console" channel in tests/dev).
type LogChannel struct {
	Sink func(e Entry)
}

func (l *LogChannel) Send(ctx context.Context, e Entry) error {
	if l.Sink != nil {
		l.Sink(e)
	}
	return nil
}
