// Package aggregate folds raw sensor samples into fixed tumbling-window
// summaries.
package aggregate

import (
	"time"

	"github.com/andrewrweber/pi-air/internal/domain"
)

// Aggregator accumulates running sums over the open window. It is not
// safe for concurrent use; the pipeline loop is its only caller.
type Aggregator struct {
	window      time.Duration
	windowStart time.Time

	sumPM1  float64
	sumPM25 float64
	sumPM10 float64
	count   int
}

// New opens the first window at start.
func New(window time.Duration, start time.Time) *Aggregator {
	return &Aggregator{window: window, windowStart: start}
}

// Window returns the configured window duration.
func (a *Aggregator) Window() time.Duration { return a.window }

// Add folds one sample into the open window. Invalid samples are counted
// toward nothing. A sample is always attributed to the window open at the
// time it arrives, never retroactively.
func (a *Aggregator) Add(s domain.RawSample) {
	if !s.Valid {
		return
	}
	a.sumPM1 += s.PM1
	a.sumPM25 += s.PM25
	a.sumPM10 += s.PM10
	a.count++
}

// Roll closes the open window at now and opens the next one. It returns
// the window's aggregate, or ok=false when no valid samples arrived — an
// empty window emits nothing, which is the signal data_staleness rules
// key off.
func (a *Aggregator) Roll(now time.Time) (*domain.AggregatedReading, bool) {
	start := a.windowStart
	count := a.count

	var r *domain.AggregatedReading
	if count > 0 {
		n := float64(count)
		r = &domain.AggregatedReading{
			WindowStart: start,
			WindowEnd:   now,
			AvgPM1:      a.sumPM1 / n,
			AvgPM25:     a.sumPM25 / n,
			AvgPM10:     a.sumPM10 / n,
			SampleCount: count,
		}
		r.AQI, r.AQILevel = domain.ScoreAQI(r.AvgPM25)
	}

	a.windowStart = now
	a.sumPM1, a.sumPM25, a.sumPM10 = 0, 0, 0
	a.count = 0

	if count == 0 {
		return nil, false
	}
	return r, true
}
