package domain

import "time"

// RawSample is one validated measurement decoded from a single sensor frame.
// Samples are immutable; they exist only until folded into an aggregate.
type RawSample struct {
	CapturedAt time.Time `json:"captured_at"`
	PM1        float64   `json:"pm1_0"`
	PM25       float64   `json:"pm2_5"`
	PM10       float64   `json:"pm10"`
	Valid      bool      `json:"valid"`
}

// AggregatedReading is the per-window summary handed to the sink and the
// rule engine. SampleCount is always >= 1; windows with no samples emit
// nothing.
type AggregatedReading struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	AvgPM1      float64   `json:"avg_pm1_0"`
	AvgPM25     float64   `json:"avg_pm2_5"`
	AvgPM10     float64   `json:"avg_pm10"`
	SampleCount int       `json:"sample_count"`
	AQI         int       `json:"aqi"`
	AQILevel    string    `json:"aqi_level"`
}

// Fields exposes the reading as named values for rule predicates and
// message templates.
func (r *AggregatedReading) Fields() map[string]any {
	return map[string]any{
		"pm1_0":        r.AvgPM1,
		"pm2_5":        r.AvgPM25,
		"pm10":         r.AvgPM10,
		"aqi":          r.AQI,
		"aqi_level":    r.AQILevel,
		"sample_count": r.SampleCount,
		"window_start": r.WindowStart.Format(time.RFC3339),
		"window_end":   r.WindowEnd.Format(time.RFC3339),
	}
}

// HealthSnapshot is an externally supplied view of host health, consumed
// by system_health rules. Values the supplier cannot measure stay zero.
type HealthSnapshot struct {
	CPUTempC       float64   `json:"cpu_temp"`
	CPUUsagePct    float64   `json:"cpu_usage"`
	MemoryUsagePct float64   `json:"memory_usage"`
	DiskUsagePct   float64   `json:"disk_usage"`
	TakenAt        time.Time `json:"taken_at"`
}

// Fields exposes the snapshot as named values for rule predicates.
func (h *HealthSnapshot) Fields() map[string]any {
	return map[string]any{
		"cpu_temp":     h.CPUTempC,
		"cpu_usage":    h.CPUUsagePct,
		"memory_usage": h.MemoryUsagePct,
		"disk_usage":   h.DiskUsagePct,
	}
}
