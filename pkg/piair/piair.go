// Package piair embeds the air-quality monitor inside any Go service:
// configuration in, a running pipeline plus a status surface out.
package piair

import (
	"log/slog"
	"sync"

	"github.com/andrewrweber/pi-air/internal/app/config"
	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// Re-exported types so embedders never import internal packages.
type (
	Config         = config.Config
	Reading        = domain.AggregatedReading
	Sample         = domain.RawSample
	AlertEvent     = domain.AlertEvent
	HealthSnapshot = domain.HealthSnapshot
	SampleSource   = ports.SampleSource
	ReadingSink    = ports.ReadingSink
	Channel        = ports.Channel
	Mailer         = ports.Mailer
	HealthSource   = ports.HealthSource
	Metrics        = ports.Metrics
)

// PushHealth is a HealthSource that embedders update from their own
// samplers. Zero value is usable; system_health rules see the last value
// pushed with Set.
type PushHealth struct {
	mu   sync.Mutex
	snap domain.HealthSnapshot
}

// Set records the latest host-health snapshot.
func (p *PushHealth) Set(s HealthSnapshot) {
	p.mu.Lock()
	p.snap = s
	p.mu.Unlock()
}

// Snapshot returns the last pushed value.
func (p *PushHealth) Snapshot() (HealthSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, nil
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Option overrides one of the monitor's default collaborators.
type Option func(*overrides)

type overrides struct {
	source   ports.SampleSource
	sink     ports.ReadingSink
	mailer   ports.Mailer
	channels []ports.Channel
	health   ports.HealthSource
	metrics  ports.Metrics
	logger   *slog.Logger
}

// WithSource replaces the configured sample source with a caller-provided
// one (simulators, replay files, custom sensors).
func WithSource(src ports.SampleSource) Option {
	return func(o *overrides) {
		if src != nil {
			o.source = src
		}
	}
}

// WithSink replaces the Postgres sink.
func WithSink(s ports.ReadingSink) Option {
	return func(o *overrides) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithMailer supplies the mail transport the email channel delivers
// through. Required when email notifications are enabled.
func WithMailer(m ports.Mailer) Option {
	return func(o *overrides) {
		if m != nil {
			o.mailer = m
		}
	}
}

// WithChannel adds a notification channel alongside the configured ones.
func WithChannel(ch ports.Channel) Option {
	return func(o *overrides) {
		if ch != nil {
			o.channels = append(o.channels, ch)
		}
	}
}

// WithHealthSource supplies host-health snapshots for system_health rules.
// Without one those rules never fire.
func WithHealthSource(h ports.HealthSource) Option {
	return func(o *overrides) {
		if h != nil {
			o.health = h
		}
	}
}

// WithMetrics replaces the default Prometheus backend.
func WithMetrics(m ports.Metrics) Option {
	return func(o *overrides) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger replaces slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(o *overrides) {
		if log != nil {
			o.logger = log
		}
	}
}
