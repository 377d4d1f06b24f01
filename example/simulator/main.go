// Runs the monitor against a synthetic sensor and prints every aggregate,
// so the whole pipeline can be exercised without hardware or a database.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/andrewrweber/pi-air"
)

// simSource emits a slowly oscillating PM2.5 signal with noise.
type simSource struct {
	mu   sync.Mutex
	done chan struct{}
}

func (s *simSource) Start(out chan<- piair.Sample) error {
	s.done = make(chan struct{})
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		start := time.Now()
		for {
			select {
			case <-s.done:
				return
			case now := <-t.C:
				phase := now.Sub(start).Seconds() / 120
				pm25 := 15 + 20*math.Sin(phase) + rand.Float64()*3
				out <- piair.Sample{
					CapturedAt: now,
					PM1:        pm25 * 0.6,
					PM25:       pm25,
					PM10:       pm25 * 1.4,
					Valid:      true,
				}
			}
		}
	}()
	return nil
}

func (s *simSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	return nil
}

// stdoutSink prints each aggregate instead of persisting it.
type stdoutSink struct{}

func (stdoutSink) Name() string { return "stdout" }

func (stdoutSink) Store(_ context.Context, r *piair.Reading) error {
	fmt.Printf("%s pm2.5=%.1f aqi=%d (%s) samples=%d\n",
		r.WindowEnd.Format(time.RFC3339), r.AvgPM25, r.AQI, r.AQILevel, r.SampleCount)
	return nil
}

func main() {
	cfg := &piair.Config{Window: 10 * time.Second}
	cfg.Sink.ConnString = "unused"
	cfg.Metrics.Addr = ":9100"
	cfg.Alerts.Notifications.Log = true

	monitor, err := piair.New(cfg,
		piair.WithSource(&simSource{}),
		piair.WithSink(stdoutSink{}),
	)
	if err != nil {
		log.Fatalf("build monitor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitor.Run(ctx); err != nil {
		log.Fatalf("monitor exited: %v", err)
	}
}
