package piair

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/andrewrweber/pi-air/internal/adapters/observability"
	"github.com/andrewrweber/pi-air/internal/app/config"
	"github.com/andrewrweber/pi-air/internal/domain"
)

type stubSource struct {
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func newStubSource() *stubSource {
	return &stubSource{done: make(chan struct{})}
}

func (s *stubSource) Start(out chan<- domain.RawSample) error {
	go func() {
		t := time.NewTicker(2 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-s.done:
				return
			case now := <-t.C:
				select {
				case out <- domain.RawSample{CapturedAt: now, PM1: 2, PM25: 10, PM10: 15, Valid: true}:
				case <-s.done:
					return
				}
			}
		}
	}()
	return nil
}

func (s *stubSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	return nil
}

type memSink struct {
	mu      sync.Mutex
	stored  int
	lastAQI int
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Store(_ context.Context, r *domain.AggregatedReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored++
	m.lastAQI = r.AQI
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored
}

type captureChannel struct {
	mu     sync.Mutex
	events []*domain.AlertEvent
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Send(_ context.Context, ev *domain.AlertEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Window: 20 * time.Millisecond,
		Sink:   config.SinkConfig{ConnString: "postgres://unused"},
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestMonitorRunsWithOverrides(t *testing.T) {
	src := newStubSource()
	snk := &memSink{}

	m, err := New(testConfig(),
		WithSource(src),
		WithSink(snk),
		WithMetrics(observability.Nop{}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for snk.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no reading persisted before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	st := m.Status()
	if st.Latest == nil {
		t.Fatalf("expected latest reading in status")
	}
	if st.Latest.AvgPM25 != 10 {
		t.Fatalf("expected mean pm2.5 10, got %f", st.Latest.AvgPM25)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !src.stopped {
		t.Fatalf("expected source stopped on shutdown")
	}
}

func TestSendTestAlert(t *testing.T) {
	ch := &captureChannel{}

	m, err := New(testConfig(),
		WithSource(newStubSource()),
		WithSink(&memSink{}),
		WithChannel(ch),
		WithMetrics(observability.Nop{}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ev, err := m.SendTestAlert(context.Background())
	if err != nil {
		t.Fatalf("send test alert: %v", err)
	}
	if len(ev.Delivery) != 1 || !ev.Delivery[0].OK {
		t.Fatalf("expected one successful delivery, got %+v", ev.Delivery)
	}
	if len(ch.events) != 1 {
		t.Fatalf("expected channel to receive the test alert")
	}

	st := m.Status()
	if len(st.RecentAlerts) != 1 {
		t.Fatalf("expected test alert in history, got %d", len(st.RecentAlerts))
	}
	if st.Channels[0] != "capture" {
		t.Fatalf("expected capture channel in status, got %v", st.Channels)
	}
}

func TestSystemHealthRulesFire(t *testing.T) {
	above := 70.0
	cfg := testConfig()
	cfg.Alerts.EvaluateEvery = 10 * time.Millisecond
	cfg.Alerts.Rules = []config.RuleConfig{{
		ID:       "cpu-hot",
		Category: domain.CategorySystemHealth,
		Severity: domain.SeverityCritical,
		Title:    "CPU at {cpu_temp}C",
		When:     []domain.Condition{{Field: "cpu_temp", Above: &above}},
	}}

	health := &PushHealth{}
	health.Set(HealthSnapshot{CPUTempC: 82.5})

	ch := &captureChannel{}
	m, err := New(cfg,
		WithSource(newStubSource()),
		WithSink(&memSink{}),
		WithChannel(ch),
		WithHealthSource(health),
		WithMetrics(observability.Nop{}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		ch.mu.Lock()
		n := len(ch.events)
		ch.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("system_health alert never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	ch.mu.Lock()
	title := ch.events[0].Title
	ch.mu.Unlock()
	if title != "CPU at 82.5C" {
		t.Fatalf("expected rendered title, got %q", title)
	}
}

func TestEmailChannelRequiresMailer(t *testing.T) {
	cfg := testConfig()
	cfg.Alerts.Notifications.Email.Enabled = true
	cfg.Alerts.Notifications.Email.Recipients = []string{"ops@example.com"}

	_, err := New(cfg,
		WithSource(newStubSource()),
		WithSink(&memSink{}),
		WithMetrics(observability.Nop{}),
		WithLogger(quietLogger()),
	)
	if err == nil {
		t.Fatalf("expected error when email is enabled without a mailer")
	}
}
