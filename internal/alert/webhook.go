package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vitals-systems/siphon/pkg/types"
)

const webhookTimeout = 10 * time.Second

// WebhookSink POSTs alerts as JSON, one request per alert. Works with
// Slack-style incoming webhooks or any endpoint that accepts the raw
// alert body.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a new webhook alert sink.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Name returns the sink identifier.
func (s *WebhookSink) Name() string { return "webhook" }

// Send posts the alert as JSON to the configured webhook URL.
func (s *WebhookSink) Send(ctx context.Context, alert types.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "siphon-alert")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain so the connection can be reused across alerts.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
