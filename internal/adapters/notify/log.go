// Package notify implements the alert delivery channels: operational log,
// email hand-off, and webhook POST.
package notify

import (
	"context"
	"log/slog"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// LogChannel writes alerts to the operational log at the level implied by
// the alert's severity. It never fails.
type LogChannel struct {
	log *slog.Logger
}

// NewLogChannel builds the log channel.
func NewLogChannel(log *slog.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, ev *domain.AlertEvent) error {
	c.log.Log(ctx, ev.Severity.SlogLevel(), "ALERT "+ev.Title,
		"rule", ev.RuleID,
		"category", ev.Category,
		"severity", ev.Severity,
		"message", ev.Message)
	return nil
}

var _ ports.Channel = (*LogChannel)(nil)
