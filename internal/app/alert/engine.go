// Package alert evaluates configured rules against pipeline updates and
// fans admitted alerts out to notification channels.
package alert

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/andrewrweber/pi-air/internal/domain"
)

// Engine evaluates rules of one category at a time against the named
// fields of the triggering update. Evaluation itself is stateless; all
// suppression state lives in the Limiter.
type Engine struct {
	rules      []domain.AlertRule
	perRuleKey bool
	log        *slog.Logger
}

// NewEngine builds an engine over an immutable rule set. When perRuleKey
// is set, dedup keys carry the rule ID so every rule rate-limits
// independently.
func NewEngine(rules []domain.AlertRule, perRuleKey bool, log *slog.Logger) *Engine {
	return &Engine{rules: rules, perRuleKey: perRuleKey, log: log}
}

// Rules returns the configured rule set.
func (e *Engine) Rules() []domain.AlertRule { return e.rules }

// Evaluate runs every enabled rule of the given category against fields
// and returns one candidate event per matching rule. Rules are
// independent; ordering never changes the outcome.
func (e *Engine) Evaluate(cat domain.Category, fields map[string]any, now time.Time) []domain.AlertEvent {
	var out []domain.AlertEvent
	for i := range e.rules {
		rule := &e.rules[i]
		if rule.Category != cat || !rule.Enabled {
			continue
		}
		if !rule.Matches(fields) {
			continue
		}
		e.log.Debug("alert rule matched",
			"rule", rule.ID,
			"category", cat,
			"severity", rule.Severity)
		out = append(out, e.buildEvent(rule, fields, now))
	}
	return out
}

func (e *Engine) buildEvent(rule *domain.AlertRule, fields map[string]any, now time.Time) domain.AlertEvent {
	key := domain.DedupKey{Category: rule.Category, Severity: rule.Severity}
	if e.perRuleKey {
		key.RuleID = rule.ID
	}

	data := make(map[string]any, len(fields))
	for k, v := range fields {
		data[k] = v
	}

	title := rule.Title
	if title == "" {
		title = string(rule.Category) + " alert"
	}

	return domain.AlertEvent{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		Category:    rule.Category,
		Severity:    rule.Severity,
		Title:       domain.RenderTemplate(title, fields),
		Message:     domain.RenderTemplate(rule.Message, fields),
		Data:        data,
		TriggeredAt: now,
		DedupKey:    key,
	}
}
