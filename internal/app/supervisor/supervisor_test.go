package supervisor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andrewrweber/pi-air/internal/adapters/pms7003"
	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

type fakeLink struct {
	r      io.Reader
	err    error // returned once r is drained
	closed bool
}

func (l *fakeLink) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if err == io.EOF && l.err != nil {
		return n, l.err
	}
	return n, err
}

func (l *fakeLink) Close() error                    { l.closed = true; return nil }
func (l *fakeLink) SetReadDeadline(time.Time) error { return nil }

type scriptedDialer struct {
	links []*fakeLink
	calls int
}

func (d *scriptedDialer) Dial(ctx context.Context) (ports.SensorLink, error) {
	if d.calls >= len(d.links) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	l := d.links[d.calls]
	d.calls++
	return l, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}

	if got := backoffDelay(cfg, 1); got != time.Second {
		t.Fatalf("first failure delay: got %s", got)
	}
	if got := backoffDelay(cfg, 2); got != 2*time.Second {
		t.Fatalf("second failure delay: got %s", got)
	}
	if got := backoffDelay(cfg, 3); got != 4*time.Second {
		t.Fatalf("third failure delay: got %s, want base*multiplier^2", got)
	}
	if got := backoffDelay(cfg, 10); got != 10*time.Second {
		t.Fatalf("delay should cap at MaxDelay, got %s", got)
	}
}

func TestSupervisorDeliversSamplesAndConnects(t *testing.T) {
	frame := pms7003.MarshalFrame(4, 12, 20)
	link := &fakeLink{r: bytes.NewReader(append(frame, pms7003.MarshalFrame(5, 13, 21)...))}
	dialer := &scriptedDialer{links: []*fakeLink{link}}

	sup := New(dialer, Config{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.RawSample, 4)
	done := make(chan struct{})
	go func() {
		sup.Run(ctx, out)
		close(done)
	}()

	s1 := <-out
	s2 := <-out
	if s1.PM25 != 12 || s2.PM25 != 13 {
		t.Fatalf("unexpected samples: %+v %+v", s1, s2)
	}

	snap := sup.Snapshot()
	if snap.State != Connected && snap.State != Degraded {
		// Degraded is possible if EOF was hit before Snapshot ran.
		t.Fatalf("unexpected state %s", snap.State)
	}
	if snap.LastRead.IsZero() {
		t.Fatalf("expected LastRead to be set")
	}

	cancel()
	<-done
}

func TestSupervisorDegradesAfterConsecutiveReadFailures(t *testing.T) {
	good := &fakeLink{
		r:   bytes.NewReader(pms7003.MarshalFrame(1, 2, 3)),
		err: errors.New("read: input/output error"),
	}
	bad1 := &fakeLink{r: bytes.NewReader(nil), err: errors.New("read: input/output error")}
	bad2 := &fakeLink{r: bytes.NewReader(nil), err: errors.New("read: input/output error")}
	dialer := &scriptedDialer{links: []*fakeLink{good, bad1, bad2}}

	// Generous base delay keeps the Degraded state observable between the
	// third failure and the next Connecting attempt.
	cfg := Config{BaseDelay: 50 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	sup := New(dialer, cfg, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan domain.RawSample, 1)
	done := make(chan struct{})
	go func() {
		sup.Run(ctx, out)
		close(done)
	}()

	<-out // first frame: reaches Connected

	deadline := time.After(2 * time.Second)
	for {
		snap := sup.Snapshot()
		if snap.ConsecutiveFailures >= 3 && snap.State == Degraded {
			if snap.NextRetryAt.IsZero() {
				t.Fatalf("expected NextRetryAt to be scheduled")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("never observed Degraded after three failures: %+v", sup.Snapshot())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-done

	if !good.closed || !bad1.closed || !bad2.closed {
		t.Fatalf("supervisor must close links it dialed")
	}
}

func TestSupervisorNeverConnectedStaysDisconnected(t *testing.T) {
	bad := &fakeLink{r: bytes.NewReader(nil), err: errors.New("no sensor")}
	dialer := &scriptedDialer{links: []*fakeLink{bad}}

	sup := New(dialer, Config{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second}, discardLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	out := make(chan domain.RawSample)
	sup.Run(ctx, out)

	snap := sup.Snapshot()
	if snap.State == Connected || snap.State == Degraded {
		t.Fatalf("sensor that never connected must not report %s", snap.State)
	}
	if snap.ConsecutiveFailures == 0 {
		t.Fatalf("expected failures to accumulate")
	}
}

type noDeadlineLink struct {
	r io.Reader
}

func (l *noDeadlineLink) Read(p []byte) (int, error)      { return l.r.Read(p) }
func (l *noDeadlineLink) Close() error                    { return nil }
func (l *noDeadlineLink) SetReadDeadline(time.Time) error { return os.ErrNoDeadline }

func TestDeadlineReaderWarnsOnceWithoutDeadlineSupport(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	r := &deadlineReader{
		link:    &noDeadlineLink{r: bytes.NewReader(make([]byte, 8))},
		timeout: time.Second,
		log:     log,
	}

	p := make([]byte, 4)
	if _, err := r.Read(p); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := r.Read(p); err != nil {
		t.Fatalf("read: %v", err)
	}

	if n := strings.Count(buf.String(), "read timeout inactive"); n != 1 {
		t.Fatalf("expected exactly one deadline warning, got %d:\n%s", n, buf.String())
	}
}

func TestSnapshotFields(t *testing.T) {
	now := time.Now()
	snap := Snapshot{State: Degraded, ConsecutiveFailures: 4, LastRead: now.Add(-90 * time.Second)}

	fields := snap.Fields(now)
	if fields["state"] != "degraded" {
		t.Fatalf("unexpected state field %v", fields["state"])
	}
	if fields["consecutive_failures"] != 4 {
		t.Fatalf("unexpected failures field %v", fields["consecutive_failures"])
	}
	if secs, ok := fields["seconds_since_read"].(float64); !ok || secs < 89 || secs > 91 {
		t.Fatalf("unexpected seconds_since_read %v", fields["seconds_since_read"])
	}
}
