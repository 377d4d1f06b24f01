// Shows a custom notification channel: alerts are fanned into a Go
// channel a worker drains, alongside the built-in log channel.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewrweber/pi-air"
)

type fanoutChannel struct {
	events chan *piair.AlertEvent
}

func (c *fanoutChannel) Name() string { return "fanout" }

func (c *fanoutChannel) Send(ctx context.Context, ev *piair.AlertEvent) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	cfg, err := piair.LoadConfig("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	fanout := &fanoutChannel{events: make(chan *piair.AlertEvent, 32)}
	go alertWorker(fanout.events)

	monitor, err := piair.New(cfg, piair.WithChannel(fanout))
	if err != nil {
		log.Fatalf("build monitor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitor.Run(ctx); err != nil {
		log.Fatalf("monitor exited: %v", err)
	}
}

func alertWorker(events <-chan *piair.AlertEvent) {
	for ev := range events {
		fmt.Printf("[%s] %s: %s (%s)\n",
			ev.TriggeredAt.Format(time.RFC3339), ev.Severity, ev.Title, ev.RuleID)
		// TODO: forward to a pager or chat integration.
	}
}
