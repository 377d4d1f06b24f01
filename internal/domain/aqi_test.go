package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreAQIBreakpoints(t *testing.T) {
	tests := []struct {
		name  string
		pm25  float64
		aqi   int
		level string
	}{
		{"clean air", 0, 0, LevelGood},
		{"good band upper edge", 9.0, 50, LevelGood},
		{"moderate band upper edge", 35.4, 100, LevelModerate},
		{"sensitive band lower edge", 35.5, 101, LevelSensitive},
		{"unhealthy band", 90.0, 175, LevelUnhealthy},
		{"very unhealthy band", 225.4, 300, LevelVeryUnhealthy},
		{"hazardous band", 300.0, 449, LevelHazardous},
		{"above top breakpoint clamps", 500.5, 500, LevelHazardous},
		{"negative treated as zero", -4.2, 0, LevelGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aqi, level := ScoreAQI(tt.pm25)
			assert.Equal(t, tt.aqi, aqi)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestScoreAQIMonotonicWithinBands(t *testing.T) {
	prev := -1
	for pm := 0.0; pm <= 330.0; pm += 0.1 {
		aqi, _ := ScoreAQI(pm)
		assert.GreaterOrEqual(t, aqi, prev, "AQI regressed at pm2.5=%.1f", pm)
		prev = aqi
	}
}

func TestScoreAQIDeterministic(t *testing.T) {
	for _, pm := range []float64{0, 9.05, 12.3, 35.4, 55.5, 125.4, 250.7} {
		a1, l1 := ScoreAQI(pm)
		a2, l2 := ScoreAQI(pm)
		assert.Equal(t, a1, a2)
		assert.Equal(t, l1, l2)
	}
}

func TestLevelForAQI(t *testing.T) {
	assert.Equal(t, LevelGood, LevelForAQI(0))
	assert.Equal(t, LevelModerate, LevelForAQI(100))
	assert.Equal(t, LevelSensitive, LevelForAQI(101))
	assert.Equal(t, LevelUnhealthy, LevelForAQI(200))
	assert.Equal(t, LevelVeryUnhealthy, LevelForAQI(300))
	assert.Equal(t, LevelHazardous, LevelForAQI(301))
}
