// Package pipeline runs the monitor's main loop: folding samples into
// window aggregates, persisting them, and driving alert evaluation.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrewrweber/pi-air/internal/app/aggregate"
	"github.com/andrewrweber/pi-air/internal/app/alert"
	"github.com/andrewrweber/pi-air/internal/app/supervisor"
	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// Alerting bundles the alert subsystem. A nil Alerting disables
// evaluation entirely; aggregation and persistence run regardless.
type Alerting struct {
	Engine        *alert.Engine
	Limiter       *alert.Limiter
	Dispatcher    *alert.Dispatcher
	History       *alert.History
	EvaluateEvery time.Duration
}

// Options wires the pipeline's collaborators. Sink is required; the rest
// may be nil.
type Options struct {
	Window       time.Duration
	Sink         ports.ReadingSink
	Alerts       *Alerting
	Health       ports.HealthSource
	ConnSnapshot func() supervisor.Snapshot
	Metrics      ports.Metrics
	Log          *slog.Logger
}

// Pipeline is the single consumer of the sample channel. All aggregation
// state is loop-owned; only the latest aggregate is shared, through an
// atomic pointer.
type Pipeline struct {
	opts Options
	agg  *aggregate.Aggregator

	latest   atomic.Pointer[domain.AggregatedReading]
	started  time.Time
	lastEmit time.Time

	dispatches sync.WaitGroup
}

// New builds a pipeline. Window defaults to 30s, EvaluateEvery to the
// window duration.
func New(opts Options) *Pipeline {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Alerts != nil && opts.Alerts.EvaluateEvery <= 0 {
		opts.Alerts.EvaluateEvery = opts.Window
	}
	return &Pipeline{opts: opts}
}

// Latest returns the most recent window aggregate, or nil before the
// first non-empty window closes.
func (p *Pipeline) Latest() *domain.AggregatedReading {
	return p.latest.Load()
}

// Run consumes samples until ctx is done. It blocks; callers run it in
// its own goroutine alongside the sample producer.
func (p *Pipeline) Run(ctx context.Context, samples <-chan domain.RawSample) error {
	now := time.Now()
	p.started = now
	p.agg = aggregate.New(p.opts.Window, now)

	windowTick := time.NewTicker(p.opts.Window)
	defer windowTick.Stop()

	var evalCh <-chan time.Time
	if p.opts.Alerts != nil {
		evalTick := time.NewTicker(p.opts.Alerts.EvaluateEvery)
		defer evalTick.Stop()
		evalCh = evalTick.C
	}

	defer p.dispatches.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			p.agg.Add(s)
		case t := <-windowTick.C:
			p.rollWindow(ctx, t)
		case t := <-evalCh:
			p.evaluateTick(ctx, t)
		}
	}
}

// rollWindow closes the window at t, persists the aggregate, and runs
// air_quality rules against it. An empty window emits nothing.
func (p *Pipeline) rollWindow(ctx context.Context, t time.Time) {
	r, ok := p.agg.Roll(t)
	if !ok {
		p.opts.Log.Debug("window closed with no samples")
		return
	}

	p.latest.Store(r)
	p.lastEmit = t
	p.opts.Metrics.IncCounter("piair_aggregates_emitted_total", 1)
	p.opts.Metrics.SetGauge("piair_latest_aqi", float64(r.AQI))
	p.opts.Log.Info("window aggregate",
		"pm2_5", r.AvgPM25,
		"aqi", r.AQI,
		"level", r.AQILevel,
		"samples", r.SampleCount)

	p.store(ctx, r)

	if p.opts.Alerts != nil {
		p.fire(ctx, domain.CategoryAirQuality, r.Fields(), t)
	}
}

// store writes the aggregate to the sink. A failed write loses that one
// aggregate and never stops the pipeline.
func (p *Pipeline) store(ctx context.Context, r *domain.AggregatedReading) {
	start := time.Now()
	err := p.opts.Sink.Store(ctx, r)
	p.opts.Metrics.ObserveLatency("piair_sink_write_latency_seconds", time.Since(start).Seconds())
	if err != nil {
		p.opts.Metrics.IncCounter("piair_sink_write_failures_total", 1)
		p.opts.Log.Error("sink write failed",
			"sink", p.opts.Sink.Name(),
			"error", err)
	}
}

// evaluateTick runs the periodic rule categories: host health, sensor
// connection state, and data staleness.
func (p *Pipeline) evaluateTick(ctx context.Context, t time.Time) {
	if p.opts.Health != nil {
		snap, err := p.opts.Health.Snapshot()
		if err != nil {
			p.opts.Log.Warn("health snapshot failed", "error", err)
		} else {
			p.fire(ctx, domain.CategorySystemHealth, snap.Fields(), t)
		}
	}

	if p.opts.ConnSnapshot != nil {
		snap := p.opts.ConnSnapshot()
		p.fire(ctx, domain.CategorySensorFailure, snap.Fields(t), t)
	}

	p.fire(ctx, domain.CategoryDataStaleness, p.stalenessFields(t), t)
}

// stalenessFields reports how long it has been since the last aggregate
// was emitted. Before the first emission it counts from pipeline start.
func (p *Pipeline) stalenessFields(t time.Time) map[string]any {
	since := p.lastEmit
	if since.IsZero() {
		since = p.started
	}
	return map[string]any{
		"stale_seconds":  t.Sub(since).Seconds(),
		"window_seconds": p.opts.Window.Seconds(),
	}
}

// fire evaluates one category, rate-limits the matches, and dispatches
// admitted events off the loop goroutine. History records the event only
// after delivery results are filled in.
func (p *Pipeline) fire(ctx context.Context, cat domain.Category, fields map[string]any, t time.Time) {
	a := p.opts.Alerts
	for _, ev := range a.Engine.Evaluate(cat, fields, t) {
		if !a.Limiter.Admit(ev.DedupKey, t) {
			p.opts.Log.Debug("alert suppressed by cooldown",
				"rule", ev.RuleID,
				"key", ev.DedupKey.String())
			continue
		}
		p.opts.Metrics.IncCounter("piair_alerts_fired_total", 1)

		ev := ev
		p.dispatches.Add(1)
		go func() {
			defer p.dispatches.Done()
			a.Dispatcher.Dispatch(ctx, &ev)
			a.History.Append(ev)
		}()
	}
}

type nopMetrics struct{}

func (nopMetrics) IncCounter(string, float64)     {}
func (nopMetrics) SetGauge(string, float64)       {}
func (nopMetrics) ObserveLatency(string, float64) {}
