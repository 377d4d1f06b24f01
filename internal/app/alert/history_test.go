package alert

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewrweber/pi-air/internal/domain"
)

func historyEvent(id string, at time.Time) domain.AlertEvent {
	return domain.AlertEvent{
		ID:          id,
		Category:    domain.CategoryAirQuality,
		Severity:    domain.SeverityWarning,
		TriggeredAt: at,
	}
}

func TestHistoryEvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		h.Append(historyEvent(fmt.Sprintf("ev-%d", i), now))
	}

	assert.Equal(t, 3, h.Len())
	recent := h.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "ev-2", recent[0].ID)
	assert.Equal(t, "ev-4", recent[2].ID)
}

func TestHistoryRecentLimit(t *testing.T) {
	h := NewHistory(10)
	now := time.Now()
	for i := 0; i < 6; i++ {
		h.Append(historyEvent(fmt.Sprintf("ev-%d", i), now))
	}

	recent := h.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "ev-4", recent[0].ID)
	assert.Equal(t, "ev-5", recent[1].ID)
}

func TestHistoryStatsCountsLast24h(t *testing.T) {
	h := NewHistory(10)
	now := time.Now()

	h.Append(historyEvent("old", now.Add(-25*time.Hour)))
	h.Append(historyEvent("recent-1", now.Add(-time.Hour)))
	h.Append(domain.AlertEvent{
		ID:          "recent-2",
		Category:    domain.CategorySystemHealth,
		Severity:    domain.SeverityCritical,
		TriggeredAt: now.Add(-time.Minute),
	})

	st := h.Stats(now)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByCategory[domain.CategoryAirQuality])
	assert.Equal(t, 1, st.ByCategory[domain.CategorySystemHealth])
	assert.Equal(t, 1, st.BySeverity[domain.SeverityWarning])
	assert.Equal(t, 1, st.BySeverity[domain.SeverityCritical])
}

func TestHistoryRecentReturnsCopy(t *testing.T) {
	h := NewHistory(4)
	h.Append(historyEvent("ev-0", time.Now()))

	recent := h.Recent(0)
	recent[0].ID = "mutated"

	assert.Equal(t, "ev-0", h.Recent(0)[0].ID)
}
