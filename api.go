// Package piair re-exports the public monitor API so consumers can
// import github.com/andrewrweber/pi-air directly.
package piair

import (
	base "github.com/andrewrweber/pi-air/pkg/piair"
)

// Type aliases for the embedding API.
type (
	Config         = base.Config
	Reading        = base.Reading
	Sample         = base.Sample
	AlertEvent     = base.AlertEvent
	HealthSnapshot = base.HealthSnapshot
	SampleSource   = base.SampleSource
	ReadingSink    = base.ReadingSink
	Channel        = base.Channel
	Mailer         = base.Mailer
	HealthSource   = base.HealthSource
	PushHealth     = base.PushHealth
	Metrics        = base.Metrics
	Monitor        = base.Monitor
	Option         = base.Option
	Status         = base.Status
)

// Constructor and option forwarding.
var (
	LoadConfig       = base.LoadConfig
	New              = base.New
	WithSource       = base.WithSource
	WithSink         = base.WithSink
	WithMailer       = base.WithMailer
	WithChannel      = base.WithChannel
	WithHealthSource = base.WithHealthSource
	WithMetrics      = base.WithMetrics
	WithLogger       = base.WithLogger
)
