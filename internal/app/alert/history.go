package alert

import (
	"sync"
	"time"

	"github.com/andrewrweber/pi-air/internal/domain"
)

// History is a bounded FIFO of recent alert events, kept for status and
// inspection. It is a diagnostic ring, not an audit log: nothing survives
// a restart.
type History struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	cap    int
}

// NewHistory creates a history bounded to capacity events.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		events: make([]domain.AlertEvent, 0, capacity),
		cap:    capacity,
	}
}

// Append records one delivered event, evicting the oldest entry once
// capacity is reached.
func (h *History) Append(ev domain.AlertEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if len(h.events) > h.cap {
		h.events = h.events[len(h.events)-h.cap:]
	}
}

// Recent returns up to limit of the most recent events, newest last.
// limit <= 0 returns everything retained.
func (h *History) Recent(limit int) []domain.AlertEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.AlertEvent, n)
	copy(out, h.events[len(h.events)-n:])
	return out
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// Stats summarizes the retained events that fired within the last 24h of
// now, counted by category and severity.
type Stats struct {
	Total      int                     `json:"total_24h"`
	ByCategory map[domain.Category]int `json:"by_category_24h"`
	BySeverity map[domain.Severity]int `json:"by_severity_24h"`
}

// Stats computes delivery statistics over the retained window.
func (h *History) Stats(now time.Time) Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{
		ByCategory: make(map[domain.Category]int),
		BySeverity: make(map[domain.Severity]int),
	}
	cutoff := now.Add(-24 * time.Hour)
	for _, ev := range h.events {
		if ev.TriggeredAt.Before(cutoff) {
			continue
		}
		st.Total++
		st.ByCategory[ev.Category]++
		st.BySeverity[ev.Severity]++
	}
	return st
}
