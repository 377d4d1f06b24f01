package alert

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// Dispatcher fans one admitted alert out to every configured channel.
// Channels run independently: one failing or stalling never blocks
// another, and no channel outcome propagates as an error. Every attempt
// is recorded on the event.
type Dispatcher struct {
	channels []ports.Channel
	timeout  time.Duration
	log      *slog.Logger
	metrics  ports.Metrics
}

// NewDispatcher builds a dispatcher. timeout bounds each individual
// channel call; metrics may be nil.
func NewDispatcher(channels []ports.Channel, timeout time.Duration, log *slog.Logger, metrics ports.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{channels: channels, timeout: timeout, log: log, metrics: metrics}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Dispatch delivers ev on all channels concurrently and fills
// ev.Delivery with one result per channel. The event must not be shared
// with readers until Dispatch returns.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *domain.AlertEvent) {
	results := make([]domain.DeliveryResult, len(d.channels))

	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch ports.Channel) {
			defer wg.Done()
			results[i] = d.send(ctx, ch, ev)
		}(i, ch)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Channel < results[j].Channel })
	ev.Delivery = results

	for _, res := range results {
		if !res.OK {
			d.count("piair_notify_failures_total")
			d.log.Error("alert delivery failed",
				"channel", res.Channel,
				"rule", ev.RuleID,
				"error", res.Error)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, ch ports.Channel, ev *domain.AlertEvent) domain.DeliveryResult {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := ch.Send(cctx, ev)
	if d.metrics != nil {
		d.metrics.ObserveLatency("piair_notify_latency_seconds", time.Since(start).Seconds())
	}

	res := domain.DeliveryResult{Channel: ch.Name(), OK: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func (d *Dispatcher) count(name string) {
	if d.metrics != nil {
		d.metrics.IncCounter(name, 1)
	}
}
