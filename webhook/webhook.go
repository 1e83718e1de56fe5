// Package webhook notifies an external endpoint when a run finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/models"
)

// EventRunCompleted is sent once per run, after the sink has flushed.
const EventRunCompleted = "run.completed"

// Event is the payload delivered to the configured endpoint.
type Event struct {
	Type      string             `json:"type"`
	RunID     string             `json:"run_id"`
	Timestamp int64              `json:"timestamp"`
	Run       models.RunSnapshot `json:"run"`
	Workbook  string             `json:"workbook,omitempty"`
	Failures  []models.Failure   `json:"failures,omitempty"`
}

// Notifier delivers run events. A Notifier with an empty URL is a no-op,
// so callers never have to branch on whether webhooks are configured.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger

	// delays between attempts; index 0 runs immediately.
	delays []time.Duration
}

// New creates a notifier from config.
func New(cfg config.WebhookConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second},
	}
}

// RunCompleted delivers a run.completed event, retrying on failure. It
// blocks until delivery succeeds, retries are exhausted, or ctx is done.
func (n *Notifier) RunCompleted(ctx context.Context, snap models.RunSnapshot, workbook string, failures []models.Failure) error {
	if n.url == "" {
		return nil
	}

	event := &Event{
		Type:      EventRunCompleted,
		RunID:     snap.ID,
		Timestamp: time.Now().Unix(),
		Run:       snap,
		Workbook:  workbook,
		Failures:  failures,
	}

	var lastErr error
	for attempt, delay := range n.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = n.deliver(ctx, event); lastErr == nil {
			n.logger.Info("webhook delivered",
				"url", n.url,
				"run_id", event.RunID,
				"attempt", attempt+1)
			return nil
		}
		n.logger.Warn("webhook delivery failed",
			"url", n.url,
			"run_id", event.RunID,
			"attempt", attempt+1,
			"error", lastErr)
	}
	return fmt.Errorf("webhook: retries exhausted: %w", lastErr)
}

func (n *Notifier) deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Gleaner-Webhook/1.0")

	if n.secret != "" {
		req.Header.Set("X-Gleaner-Signature", "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers verify
// payloads with the same function.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
