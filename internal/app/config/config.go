// Package config loads and validates the monitor's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andrewrweber/pi-air/internal/adapters/notify"
	"github.com/andrewrweber/pi-air/internal/adapters/opcua"
	"github.com/andrewrweber/pi-air/internal/app/alert"
	"github.com/andrewrweber/pi-air/internal/app/supervisor"
	"github.com/andrewrweber/pi-air/internal/domain"
)

// Sample source selection.
const (
	SourcePMS7003 = "pms7003"
	SourceOPCUA   = "opcua"
)

type Config struct {
	Source  string            `yaml:"source"`
	Sensor  SensorConfig      `yaml:"sensor"`
	Backoff supervisor.Config `yaml:"backoff"`
	Window  time.Duration     `yaml:"window"`
	OPCUA   opcua.Config      `yaml:"opcua"`
	Sink    SinkConfig        `yaml:"sink"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Alerts  AlertsConfig      `yaml:"alerts"`
}

// SensorConfig locates the serial sensor device.
type SensorConfig struct {
	Device string `yaml:"device"`
}

type SinkConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AlertsConfig configures rule evaluation, rate limiting, and delivery.
type AlertsConfig struct {
	Enabled          *bool                    `yaml:"enabled"`
	EvaluateEvery    time.Duration            `yaml:"evaluate_every"`
	HistorySize      int                      `yaml:"history_size"`
	DefaultCooldown  time.Duration            `yaml:"default_cooldown"`
	Cooldowns        map[string]time.Duration `yaml:"cooldowns"`
	PerRuleCooldowns bool                     `yaml:"per_rule_cooldowns"`
	Notifications    NotificationsConfig      `yaml:"notifications"`
	Rules            []RuleConfig             `yaml:"rules"`
}

// NotificationsConfig enables and configures the delivery channels.
type NotificationsConfig struct {
	Log     bool                 `yaml:"log"`
	Email   notify.EmailConfig   `yaml:"email"`
	Webhook notify.WebhookConfig `yaml:"webhook"`
}

// RuleConfig is the YAML shape of one alert rule. Enabled defaults to
// true when omitted.
type RuleConfig struct {
	ID       string             `yaml:"id"`
	Category domain.Category    `yaml:"category"`
	Severity domain.Severity    `yaml:"severity"`
	Title    string             `yaml:"title"`
	Message  string             `yaml:"message"`
	When     []domain.Condition `yaml:"when"`
	Enabled  *bool              `yaml:"enabled"`
}

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source == "" {
		c.Source = SourcePMS7003
	}
	if c.Sensor.Device == "" {
		c.Sensor.Device = "/dev/ttyS0"
	}
	if c.Window <= 0 {
		c.Window = 30 * time.Second
	}
	if c.Sink.Table == "" {
		c.Sink.Table = "air_quality_readings"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Alerts.Enabled == nil {
		on := true
		c.Alerts.Enabled = &on
	}
	if c.Alerts.EvaluateEvery <= 0 {
		c.Alerts.EvaluateEvery = 30 * time.Second
	}
	if c.Alerts.HistorySize <= 0 {
		c.Alerts.HistorySize = 100
	}
	if c.Alerts.DefaultCooldown <= 0 {
		c.Alerts.DefaultCooldown = 30 * time.Minute
	}

	if c.Source == SourceOPCUA {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	switch c.Source {
	case SourcePMS7003:
		if c.Sensor.Device == "" {
			return fmt.Errorf("sensor.device is required")
		}
	case SourceOPCUA:
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	if c.Sink.ConnString == "" {
		return fmt.Errorf("sink.conn_string is required")
	}

	if _, err := c.CooldownMap(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Alerts.Rules))
	for i, r := range c.Alerts.Rules {
		if r.ID == "" {
			return fmt.Errorf("alerts.rules[%d]: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("alerts.rules[%d]: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		if !r.Category.Valid() {
			return fmt.Errorf("rule %q: unknown category %q", r.ID, r.Category)
		}
		if !r.Severity.Valid() {
			return fmt.Errorf("rule %q: unknown severity %q", r.ID, r.Severity)
		}
		for j, cond := range r.When {
			if cond.Field == "" {
				return fmt.Errorf("rule %q: when[%d]: field is required", r.ID, j)
			}
			set := 0
			if cond.Above != nil {
				set++
			}
			if cond.Below != nil {
				set++
			}
			if len(cond.In) > 0 {
				set++
			}
			if set != 1 {
				return fmt.Errorf("rule %q: when[%d]: exactly one of above, below, or in must be set", r.ID, j)
			}
		}
	}
	return nil
}

// AlertsEnabled reports whether the alert subsystem runs.
func (c *Config) AlertsEnabled() bool {
	return c.Alerts.Enabled == nil || *c.Alerts.Enabled
}

// Rules converts the configured rules into the immutable form the engine
// evaluates.
func (c *Config) Rules() []domain.AlertRule {
	out := make([]domain.AlertRule, 0, len(c.Alerts.Rules))
	for _, r := range c.Alerts.Rules {
		out = append(out, domain.AlertRule{
			ID:       r.ID,
			Category: r.Category,
			Severity: r.Severity,
			Title:    r.Title,
			Message:  r.Message,
			When:     r.When,
			Enabled:  r.Enabled == nil || *r.Enabled,
		})
	}
	return out
}

// CooldownMap parses the configured cooldown overrides. Keys are
// "<category>_<severity>", e.g. "air_quality_warning".
func (c *Config) CooldownMap() (map[alert.CooldownKey]time.Duration, error) {
	if len(c.Alerts.Cooldowns) == 0 {
		return nil, nil
	}
	out := make(map[alert.CooldownKey]time.Duration, len(c.Alerts.Cooldowns))
	for raw, d := range c.Alerts.Cooldowns {
		key, err := parseCooldownKey(raw)
		if err != nil {
			return nil, fmt.Errorf("alerts.cooldowns: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("alerts.cooldowns[%s]: duration must be positive", raw)
		}
		out[key] = d
	}
	return out, nil
}

// parseCooldownKey splits a "<category>_<severity>" key on its severity
// suffix. Categories themselves contain underscores, so match the suffix
// against the known severities rather than splitting blindly.
func parseCooldownKey(raw string) (alert.CooldownKey, error) {
	for _, sev := range domain.Severities {
		suffix := "_" + string(sev)
		if !strings.HasSuffix(raw, suffix) {
			continue
		}
		cat := domain.Category(strings.TrimSuffix(raw, suffix))
		if !cat.Valid() {
			return alert.CooldownKey{}, fmt.Errorf("key %q: unknown category %q", raw, cat)
		}
		return alert.CooldownKey{Category: cat, Severity: sev}, nil
	}
	return alert.CooldownKey{}, fmt.Errorf("key %q: no known severity suffix", raw)
}
