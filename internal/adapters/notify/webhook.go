package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

const webhookUserAgent = "pi-air-monitor/1.0"

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Enabled      bool              `yaml:"enabled"`
	URL          string            `yaml:"url"`
	Timeout      time.Duration     `yaml:"timeout"`
	Headers      map[string]string `yaml:"headers"`
	CustomFields map[string]any    `yaml:"custom_fields"`
}

// WebhookChannel serializes an alert to JSON and POSTs it. Any non-2xx
// response is a delivery failure.
type WebhookChannel struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookChannel builds the webhook channel.
func NewWebhookChannel(cfg WebhookConfig) (*WebhookChannel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook channel requires a url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, ev *domain.AlertEvent) error {
	payload := map[string]any{
		"alert_id":  ev.ID,
		"rule_id":   ev.RuleID,
		"category":  ev.Category,
		"severity":  ev.Severity,
		"title":     ev.Title,
		"message":   ev.Message,
		"data":      ev.Data,
		"timestamp": ev.TriggeredAt.Unix(),
	}
	// Configured extra fields are merged in and may shadow the standard
	// ones, matching how receivers like Slack-compatible hooks are fed.
	for k, v := range c.cfg.CustomFields {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var _ ports.Channel = (*WebhookChannel)(nil)
