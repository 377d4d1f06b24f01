package domain

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Category classifies what kind of update a rule evaluates against.
type Category string

const (
	CategoryAirQuality    Category = "air_quality"
	CategorySystemHealth  Category = "system_health"
	CategorySensorFailure Category = "sensor_failure"
	CategoryDataStaleness Category = "data_staleness"
)

// Categories lists every valid rule category.
var Categories = []Category{
	CategoryAirQuality,
	CategorySystemHealth,
	CategorySensorFailure,
	CategoryDataStaleness,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Severities lists every valid severity, least urgent first.
var Severities = []Severity{
	SeverityInfo,
	SeverityWarning,
	SeverityCritical,
	SeverityEmergency,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// SlogLevel maps a severity onto the structured-log level used when the
// log channel records the alert.
func (s Severity) SlogLevel() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Condition is a single predicate clause. Exactly one of Above, Below, or
// In is set; a rule's clauses are ANDed together.
type Condition struct {
	Field string   `yaml:"field"`
	Above *float64 `yaml:"above,omitempty"`
	Below *float64 `yaml:"below,omitempty"`
	In    []string `yaml:"in,omitempty"`
}

// Holds reports whether the condition matches the named fields of the
// triggering value. Missing fields never match.
func (c Condition) Holds(fields map[string]any) bool {
	v, ok := fields[c.Field]
	if !ok {
		return false
	}
	switch {
	case c.Above != nil:
		n, ok := toFloat(v)
		return ok && n > *c.Above
	case c.Below != nil:
		n, ok := toFloat(v)
		return ok && n < *c.Below
	case len(c.In) > 0:
		s := FormatFieldValue(v)
		for _, want := range c.In {
			if s == want {
				return true
			}
		}
		return false
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// AlertRule is a configured trigger. Rules are loaded once at startup and
// read-only to the pipeline afterwards.
type AlertRule struct {
	ID       string      `yaml:"id"`
	Category Category    `yaml:"category"`
	Severity Severity    `yaml:"severity"`
	Title    string      `yaml:"title"`
	Message  string      `yaml:"message"`
	When     []Condition `yaml:"when"`
	Enabled  bool        `yaml:"-"`
}

// Matches reports whether every clause of the rule holds against fields.
// A rule with no clauses never fires.
func (r *AlertRule) Matches(fields map[string]any) bool {
	if len(r.When) == 0 {
		return false
	}
	for _, cond := range r.When {
		if !cond.Holds(fields) {
			return false
		}
	}
	return true
}

// DedupKey groups alerts for rate limiting. RuleID is empty under the
// default (category, severity) granularity and set when per-rule cooldowns
// are configured.
type DedupKey struct {
	Category Category
	Severity Severity
	RuleID   string
}

func (k DedupKey) String() string {
	if k.RuleID != "" {
		return fmt.Sprintf("%s/%s/%s", k.Category, k.Severity, k.RuleID)
	}
	return fmt.Sprintf("%s/%s", k.Category, k.Severity)
}

// DeliveryResult records one channel's attempt to deliver an alert.
type DeliveryResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// AlertEvent is a triggered, rate-limit-admitted alert. Delivery is filled
// once by the dispatcher and the event is immutable afterwards.
type AlertEvent struct {
	ID          string           `json:"id"`
	RuleID      string           `json:"rule_id"`
	Category    Category         `json:"category"`
	Severity    Severity         `json:"severity"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data,omitempty"`
	TriggeredAt time.Time        `json:"triggered_at"`
	DedupKey    DedupKey         `json:"-"`
	Delivery    []DeliveryResult `json:"delivery,omitempty"`
}

// RenderTemplate substitutes {field} tokens with the named values from the
// triggering update. Unknown tokens are left in place so a misconfigured
// template is visible in the delivered message rather than silently blank.
func RenderTemplate(tmpl string, fields map[string]any) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	out := tmpl
	for name, v := range fields {
		out = strings.ReplaceAll(out, "{"+name+"}", FormatFieldValue(v))
	}
	return out
}

// FormatFieldValue renders a field value the way it appears in messages
// and set-membership comparisons. Floats drop trailing zeros.
func FormatFieldValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}
