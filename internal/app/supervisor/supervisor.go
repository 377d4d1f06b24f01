// Package supervisor owns the sensor link lifecycle: dialing, the
// connection state machine, and the reconnect backoff policy.
package supervisor

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/andrewrweber/pi-air/internal/adapters/pms7003"
	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Degraded
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Config sets the read timeout and reconnect backoff policy.
type Config struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func (c *Config) applyDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Minute
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
}

// Snapshot is the externally observable connection state, queried by
// sensor_failure rules and the status surface.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastRead            time.Time `json:"last_read"`
	NextRetryAt         time.Time `json:"next_retry_at"`
}

// Fields exposes the snapshot as named values for rule predicates.
func (s Snapshot) Fields(now time.Time) map[string]any {
	sinceRead := math.Inf(1)
	if !s.LastRead.IsZero() {
		sinceRead = now.Sub(s.LastRead).Seconds()
	}
	return map[string]any{
		"state":                s.State.String(),
		"consecutive_failures": s.ConsecutiveFailures,
		"seconds_since_read":   sinceRead,
	}
}

// Supervisor drives the dial → read → backoff loop and publishes decoded
// samples. It is the only writer of the connection state.
type Supervisor struct {
	dial    ports.LinkDialer
	cfg     Config
	log     *slog.Logger
	metrics ports.Metrics

	mu sync.Mutex
	st Snapshot
}

// New builds a Supervisor. metrics may be nil.
func New(dial ports.LinkDialer, cfg Config, log *slog.Logger, metrics ports.Metrics) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		dial:    dial,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
	}
}

// Snapshot returns the current connection state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Run blocks until ctx is done, reconnecting with exponential backoff and
// sending every decoded sample to out. No sensor condition terminates the
// loop.
func (s *Supervisor) Run(ctx context.Context, out chan<- domain.RawSample) {
	for ctx.Err() == nil {
		s.setState(Connecting)

		link, err := s.dial.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := s.recordFailure(time.Now())
			s.log.Warn("sensor dial failed",
				"error", err,
				"failures", s.Snapshot().ConsecutiveFailures,
				"retry_in", delay)
			sleepCtx(ctx, delay)
			continue
		}

		delay, ok := s.consume(ctx, link, out)
		if !ok {
			return
		}
		sleepCtx(ctx, delay)
	}
}

// consume reads frames until the link fails. It returns the backoff delay
// to wait before redialing, or ok=false when ctx ended.
func (s *Supervisor) consume(ctx context.Context, link ports.SensorLink, out chan<- domain.RawSample) (time.Duration, bool) {
	defer link.Close()

	var opts []pms7003.Option
	if s.metrics != nil {
		opts = append(opts, pms7003.WithMetrics(s.metrics))
	}
	dec := pms7003.NewDecoder(&deadlineReader{link: link, timeout: s.cfg.ReadTimeout, log: s.log}, opts...)

	for {
		sample, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return 0, false
			}
			delay := s.recordFailure(time.Now())
			s.log.Warn("sensor read failed",
				"error", err,
				"failures", s.Snapshot().ConsecutiveFailures,
				"retry_in", delay)
			return delay, true
		}

		s.markConnected(sample.CapturedAt)

		select {
		case out <- sample:
		case <-ctx.Done():
			return 0, false
		}
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.st.State = st
	s.mu.Unlock()
	s.gaugeState(st)
}

// markConnected transitions into Connected on the first successful frame
// and resets the backoff immediately.
func (s *Supervisor) markConnected(readAt time.Time) {
	s.mu.Lock()
	wasConnected := s.st.State == Connected
	s.st.State = Connected
	s.st.ConsecutiveFailures = 0
	s.st.LastRead = readAt
	s.st.NextRetryAt = time.Time{}
	s.mu.Unlock()

	if !wasConnected {
		s.log.Info("sensor connected")
		s.gaugeState(Connected)
	}
}

// recordFailure bumps the consecutive-failure count, moves the state
// machine, and returns the backoff delay before the next Connecting
// attempt. A sensor that has delivered at least one frame degrades;
// one that never connected stays Disconnected.
func (s *Supervisor) recordFailure(now time.Time) time.Duration {
	s.mu.Lock()
	s.st.ConsecutiveFailures++
	if s.st.LastRead.IsZero() {
		s.st.State = Disconnected
	} else {
		s.st.State = Degraded
	}
	delay := backoffDelay(s.cfg, s.st.ConsecutiveFailures)
	s.st.NextRetryAt = now.Add(delay)
	st := s.st.State
	s.mu.Unlock()

	s.gaugeState(st)
	return delay
}

func (s *Supervisor) gaugeState(st State) {
	if s.metrics != nil {
		s.metrics.SetGauge("piair_connection_state", float64(st))
	}
}

// backoffDelay is base × multiplier^(failures-1), capped at MaxDelay.
func backoffDelay(cfg Config, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(failures-1))
	if d > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// deadlineReader arms the link's read deadline before every read so a
// silent sensor surfaces as a timeout instead of a hung goroutine. A link
// that rejects deadlines (os.ErrNoDeadline on non-pollable files) leaves
// the timeout inoperative; that is logged once so the operator can see it.
type deadlineReader struct {
	link    ports.SensorLink
	timeout time.Duration
	log     *slog.Logger
	warned  bool
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.link.SetReadDeadline(time.Now().Add(r.timeout)); err != nil && !r.warned {
			r.warned = true
			r.log.Warn("sensor link does not support read deadlines; read timeout inactive",
				"error", err)
		}
	}
	return r.link.Read(p)
}
