package piair

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrewrweber/pi-air/internal/adapters/notify"
	"github.com/andrewrweber/pi-air/internal/adapters/observability"
	"github.com/andrewrweber/pi-air/internal/adapters/opcua"
	"github.com/andrewrweber/pi-air/internal/adapters/serial"
	"github.com/andrewrweber/pi-air/internal/adapters/sink"
	"github.com/andrewrweber/pi-air/internal/app/alert"
	"github.com/andrewrweber/pi-air/internal/app/config"
	"github.com/andrewrweber/pi-air/internal/app/pipeline"
	"github.com/andrewrweber/pi-air/internal/app/supervisor"
	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// Monitor owns the full pipeline: sample acquisition, aggregation,
// persistence, alerting, and the metrics endpoint.
type Monitor struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics ports.Metrics

	sup    *supervisor.Supervisor
	source ports.SampleSource

	pipe       *pipeline.Pipeline
	limiter    *alert.Limiter
	history    *alert.History
	dispatcher *alert.Dispatcher

	db         *sql.DB
	metricsSrv *http.Server
}

// New wires the monitor from configuration. Options override individual
// collaborators; everything else comes from cfg.
func New(cfg *config.Config, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	log := o.logger
	if log == nil {
		log = slog.Default()
	}
	metrics := o.metrics
	if metrics == nil {
		metrics = observability.NewPromMetrics()
	}

	m := &Monitor{cfg: cfg, log: log, metrics: metrics}

	if o.source != nil {
		m.source = o.source
	} else {
		switch cfg.Source {
		case config.SourceOPCUA:
			col, err := opcua.NewCollector(cfg.OPCUA, log)
			if err != nil {
				return nil, err
			}
			m.source = col
		default:
			dialer := serial.DeviceDialer{Path: cfg.Sensor.Device}
			m.sup = supervisor.New(dialer, cfg.Backoff, log, metrics)
		}
	}

	snk := o.sink
	if snk == nil {
		db, err := sql.Open("postgres", cfg.Sink.ConnString)
		if err != nil {
			return nil, err
		}
		m.db = db
		snk = sink.NewPostgresSink(db, cfg.Sink.Table)
	}

	var alerts *pipeline.Alerting
	if cfg.AlertsEnabled() {
		channels, err := buildChannels(cfg, o.mailer, log)
		if err != nil {
			return nil, err
		}
		channels = append(channels, o.channels...)

		cooldowns, err := cfg.CooldownMap()
		if err != nil {
			return nil, err
		}

		m.limiter = alert.NewLimiter(cooldowns, cfg.Alerts.DefaultCooldown)
		m.history = alert.NewHistory(cfg.Alerts.HistorySize)
		m.dispatcher = alert.NewDispatcher(channels, 10*time.Second, log, metrics)

		alerts = &pipeline.Alerting{
			Engine:        alert.NewEngine(cfg.Rules(), cfg.Alerts.PerRuleCooldowns, log),
			Limiter:       m.limiter,
			Dispatcher:    m.dispatcher,
			History:       m.history,
			EvaluateEvery: cfg.Alerts.EvaluateEvery,
		}
	}

	popts := pipeline.Options{
		Window:  cfg.Window,
		Sink:    snk,
		Alerts:  alerts,
		Health:  o.health,
		Metrics: metrics,
		Log:     log,
	}
	if m.sup != nil {
		popts.ConnSnapshot = m.sup.Snapshot
	}
	m.pipe = pipeline.New(popts)

	return m, nil
}

func buildChannels(cfg *config.Config, mailer ports.Mailer, log *slog.Logger) ([]ports.Channel, error) {
	var out []ports.Channel
	n := cfg.Alerts.Notifications

	if n.Log {
		out = append(out, notify.NewLogChannel(log))
	}
	if n.Email.Enabled {
		if mailer == nil {
			return nil, fmt.Errorf("email notifications enabled but no mailer supplied")
		}
		ch, err := notify.NewEmailChannel(n.Email, mailer)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if n.Webhook.Enabled {
		ch, err := notify.NewWebhookChannel(n.Webhook)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// Run blocks until ctx is cancelled, then shuts the monitor down.
func (m *Monitor) Run(ctx context.Context) error {
	if m.cfg.Metrics.Addr != "" {
		m.startMetrics()
	}

	samples := make(chan domain.RawSample, 64)

	if m.source != nil {
		if err := m.source.Start(samples); err != nil {
			m.shutdown()
			return err
		}
	} else {
		go m.sup.Run(ctx, samples)
	}

	err := m.pipe.Run(ctx, samples)
	return errors.Join(err, m.shutdown())
}

func (m *Monitor) shutdown() error {
	var errs []error

	if m.source != nil {
		if err := m.source.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	m.metricsSrv = &http.Server{
		Addr:    m.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := m.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("metrics server exited", "error", err)
		}
	}()
}

// Status is a point-in-time view of the running monitor.
type Status struct {
	Connection   *supervisor.Snapshot  `json:"connection,omitempty"`
	Latest       *Reading              `json:"latest,omitempty"`
	RecentAlerts []AlertEvent          `json:"recent_alerts,omitempty"`
	AlertStats   *alert.Stats          `json:"alert_stats,omitempty"`
	Cooldowns    []alert.CooldownState `json:"cooldowns,omitempty"`
	Channels     []string              `json:"channels,omitempty"`
}

// Status reports connection state, the latest aggregate, and alert
// activity. Safe to call from any goroutine while Run is active.
func (m *Monitor) Status() Status {
	st := Status{Latest: m.pipe.Latest()}

	if m.sup != nil {
		snap := m.sup.Snapshot()
		st.Connection = &snap
	}
	if m.history != nil {
		st.RecentAlerts = m.history.Recent(10)
		stats := m.history.Stats(time.Now())
		st.AlertStats = &stats
	}
	if m.limiter != nil {
		st.Cooldowns = m.limiter.Snapshot()
	}
	if m.dispatcher != nil {
		st.Channels = m.dispatcher.Channels()
	}
	return st
}

// SendTestAlert pushes a synthetic alert through every configured channel,
// bypassing rules and rate limiting. It verifies delivery wiring end to
// end and records the event in history.
func (m *Monitor) SendTestAlert(ctx context.Context) (*AlertEvent, error) {
	if m.dispatcher == nil {
		return nil, fmt.Errorf("alerts are disabled")
	}

	now := time.Now()
	ev := domain.AlertEvent{
		ID:          uuid.NewString(),
		RuleID:      "test",
		Category:    domain.CategorySystemHealth,
		Severity:    domain.SeverityInfo,
		Title:       "Test alert",
		Message:     "Notification channels are wired correctly.",
		TriggeredAt: now,
		DedupKey:    domain.DedupKey{Category: domain.CategorySystemHealth, Severity: domain.SeverityInfo, RuleID: "test"},
	}

	m.dispatcher.Dispatch(ctx, &ev)
	m.history.Append(ev)

	for _, res := range ev.Delivery {
		if !res.OK {
			return &ev, fmt.Errorf("channel %s failed: %s", res.Channel, res.Error)
		}
	}
	return &ev, nil
}
