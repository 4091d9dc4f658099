// Package notify defines the notification collaborator.
//
// The pipeline raises notifications on enqueue and on successful delivery.
// Notifications are fire-and-forget: no return value is consumed and a
// failing notifier never affects queue or sync state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
)

// Notification is a user-facing message raised by the pipeline.
type Notification struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Tag                string `json:"tag"`
	RequireInteraction bool   `json:"require_interaction,omitempty"`
}

// Notifier delivers a notification. Implementations must not block the
// caller meaningfully and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the structured log. Default when no
// webhook is configured.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(_ context.Context, n Notification) {
	logger.Info("Notification",
		"title", n.Title,
		"body", n.Body,
		"tag", n.Tag,
		"require_interaction", n.RequireInteraction)
}

// WebhookNotifier POSTs notifications as JSON to a local webhook, which
// the host application turns into OS-level notifications.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts the notification. Failures are logged and dropped.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		logger.Warn("Failed to encode notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		logger.Warn("Failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		logger.Warn("Notification webhook unreachable", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		logger.Warn("Notification webhook rejected", "status", resp.StatusCode)
	}
}
