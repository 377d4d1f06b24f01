package alert

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewrweber/pi-air/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

func testRules() []domain.AlertRule {
	return []domain.AlertRule{
		{
			ID:       "aqi-sensitive",
			Category: domain.CategoryAirQuality,
			Severity: domain.SeverityWarning,
			Title:    "Air quality is {aqi_level}",
			Message:  "AQI {aqi}, PM2.5 {pm2_5} µg/m³",
			When:     []domain.Condition{{Field: "aqi", Above: f(100)}},
			Enabled:  true,
		},
		{
			ID:       "aqi-hazardous",
			Category: domain.CategoryAirQuality,
			Severity: domain.SeverityEmergency,
			Message:  "hazardous air",
			When:     []domain.Condition{{Field: "aqi_level", In: []string{domain.LevelHazardous}}},
			Enabled:  true,
		},
		{
			ID:       "disabled-rule",
			Category: domain.CategoryAirQuality,
			Severity: domain.SeverityInfo,
			Message:  "should never fire",
			When:     []domain.Condition{{Field: "aqi", Above: f(0)}},
			Enabled:  false,
		},
		{
			ID:       "cpu-hot",
			Category: domain.CategorySystemHealth,
			Severity: domain.SeverityCritical,
			Message:  "CPU at {cpu_temp}C",
			When:     []domain.Condition{{Field: "cpu_temp", Above: f(80)}},
			Enabled:  true,
		},
	}
}

func TestEngineEvaluatesMatchingCategoryOnly(t *testing.T) {
	eng := NewEngine(testRules(), false, testLogger())
	now := time.Now()

	fields := map[string]any{"aqi": 120, "aqi_level": domain.LevelSensitive, "pm2_5": 42.1}
	events := eng.Evaluate(domain.CategoryAirQuality, fields, now)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "aqi-sensitive", ev.RuleID)
	assert.Equal(t, "Air quality is Unhealthy for Sensitive Groups", ev.Title)
	assert.Equal(t, "AQI 120, PM2.5 42.1 µg/m³", ev.Message)
	assert.Equal(t, domain.SeverityWarning, ev.Severity)
	assert.Equal(t, now, ev.TriggeredAt)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, domain.DedupKey{Category: domain.CategoryAirQuality, Severity: domain.SeverityWarning}, ev.DedupKey)
}

func TestEngineDisabledRulesNeverFire(t *testing.T) {
	eng := NewEngine(testRules(), false, testLogger())

	events := eng.Evaluate(domain.CategoryAirQuality, map[string]any{"aqi": 5, "aqi_level": domain.LevelGood}, time.Now())
	assert.Empty(t, events)
}

func TestEngineMultipleIndependentRules(t *testing.T) {
	eng := NewEngine(testRules(), false, testLogger())

	fields := map[string]any{"aqi": 480, "aqi_level": domain.LevelHazardous, "pm2_5": 310.0}
	events := eng.Evaluate(domain.CategoryAirQuality, fields, time.Now())

	require.Len(t, events, 2)
	ids := []string{events[0].RuleID, events[1].RuleID}
	assert.ElementsMatch(t, []string{"aqi-sensitive", "aqi-hazardous"}, ids)
}

func TestEnginePerRuleDedupKeys(t *testing.T) {
	eng := NewEngine(testRules(), true, testLogger())

	events := eng.Evaluate(domain.CategorySystemHealth, map[string]any{"cpu_temp": 85.5}, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, "cpu-hot", events[0].DedupKey.RuleID)
	assert.Equal(t, "CPU at 85.5C", events[0].Message)
}

func TestEngineLogsMatchesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	eng := NewEngine(testRules(), false, log)

	eng.Evaluate(domain.CategorySystemHealth, map[string]any{"cpu_temp": 90.0}, time.Now())

	out := buf.String()
	assert.Contains(t, out, "alert rule matched")
	assert.Contains(t, out, "rule=cpu-hot")
}

func TestEngineCopiesFieldsIntoEvent(t *testing.T) {
	eng := NewEngine(testRules(), false, testLogger())

	fields := map[string]any{"aqi": 150, "aqi_level": domain.LevelSensitive, "pm2_5": 55.0}
	events := eng.Evaluate(domain.CategoryAirQuality, fields, time.Now())
	require.Len(t, events, 1)

	fields["aqi"] = 0 // mutating the caller's map must not touch the event
	assert.Equal(t, 150, events[0].Data["aqi"])
}
