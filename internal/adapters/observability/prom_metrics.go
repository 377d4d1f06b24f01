// Package observability implements the metrics port on Prometheus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrewrweber/pi-air/internal/ports"
)

// PromMetrics registers the pipeline's metric set and routes updates by
// name. Updates to unregistered names are dropped.
type PromMetrics struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromMetrics registers every pipeline metric on the default
// registerer. Call it once per process.
func NewPromMetrics() *PromMetrics {
	frames := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piair_frames_decoded_total",
		Help: "Valid sensor frames decoded.",
	})
	checksum := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piair_frame_checksum_failures_total",
		Help: "Frames discarded for checksum or length mismatch.",
	})
	aggregates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piair_aggregates_emitted_total",
		Help: "Window aggregates emitted by the pipeline.",
	})
	sinkFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piair_sink_write_failures_total",
		Help: "Aggregates lost to sink write errors.",
	})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piair_alerts_fired_total",
		Help: "Alerts admitted past rate limiting and dispatched.",
	})
	notifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "piair_notify_failures_total",
		Help: "Individual channel delivery failures.",
	})
	connState := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "piair_connection_state",
		Help: "Sensor link state: 0 disconnected, 1 connecting, 2 connected, 3 degraded.",
	})
	latestAQI := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "piair_latest_aqi",
		Help: "AQI of the most recent window aggregate.",
	})
	sinkLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "piair_sink_write_latency_seconds",
		Help:    "Latency of aggregate writes to the sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	notifyLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "piair_notify_latency_seconds",
		Help:    "Per-channel alert delivery latency.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	prometheus.MustRegister(frames, checksum, aggregates, sinkFailures,
		alerts, notifyFailures, connState, latestAQI, sinkLatency, notifyLatency)

	return &PromMetrics{
		counters: map[string]prometheus.Counter{
			"piair_frames_decoded_total":          frames,
			"piair_frame_checksum_failures_total": checksum,
			"piair_aggregates_emitted_total":      aggregates,
			"piair_sink_write_failures_total":     sinkFailures,
			"piair_alerts_fired_total":            alerts,
			"piair_notify_failures_total":         notifyFailures,
		},
		gauges: map[string]prometheus.Gauge{
			"piair_connection_state": connState,
			"piair_latest_aqi":       latestAQI,
		},
		histos: map[string]prometheus.Observer{
			"piair_sink_write_latency_seconds": sinkLatency,
			"piair_notify_latency_seconds":     notifyLatency,
		},
	}
}

func (p *PromMetrics) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromMetrics) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromMetrics) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

var _ ports.Metrics = (*PromMetrics)(nil)

// Nop discards every metric update. Useful as a default and in tests.
type Nop struct{}

func (Nop) IncCounter(string, float64)     {}
func (Nop) SetGauge(string, float64)       {}
func (Nop) ObserveLatency(string, float64) {}

var _ ports.Metrics = Nop{}
