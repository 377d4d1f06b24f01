package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// EmailConfig configures the email channel. Transport credentials belong
// to the Mailer collaborator, not here.
type EmailConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Recipients    []string `yaml:"recipients"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// EmailChannel renders an alert to subject and body and hands it to the
// external mail-sending collaborator.
type EmailChannel struct {
	cfg    EmailConfig
	mailer ports.Mailer
}

// NewEmailChannel builds the email channel. The mailer must be non-nil.
func NewEmailChannel(cfg EmailConfig, mailer ports.Mailer) (*EmailChannel, error) {
	if mailer == nil {
		return nil, fmt.Errorf("email channel requires a mailer")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("email channel requires at least one recipient")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "[pi-air]"
	}
	return &EmailChannel{cfg: cfg, mailer: mailer}, nil
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, ev *domain.AlertEvent) error {
	subject := fmt.Sprintf("%s %s: %s", c.cfg.SubjectPrefix, strings.ToUpper(string(ev.Severity)), ev.Title)
	return c.mailer.SendMail(ctx, c.cfg.Recipients, subject, c.body(ev))
}

func (c *EmailChannel) body(ev *domain.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", ev.Message)
	fmt.Fprintf(&b, "Severity: %s\n", ev.Severity)
	fmt.Fprintf(&b, "Category: %s\n", ev.Category)
	fmt.Fprintf(&b, "Rule: %s\n", ev.RuleID)
	fmt.Fprintf(&b, "Time: %s\n", ev.TriggeredAt.Format("2006-01-02 15:04:05 MST"))

	if len(ev.Data) > 0 {
		b.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, domain.FormatFieldValue(ev.Data[k]))
		}
	}
	return b.String()
}

var _ ports.Channel = (*EmailChannel)(nil)
