package domain

import "math"

// AQI category labels, matching the EPA naming.
const (
	LevelGood          = "Good"
	LevelModerate      = "Moderate"
	LevelSensitive     = "Unhealthy for Sensitive Groups"
	LevelUnhealthy     = "Unhealthy"
	LevelVeryUnhealthy = "Very Unhealthy"
	LevelHazardous     = "Hazardous"
)

type aqiBand struct {
	concLow  float64
	concHigh float64
	idxLow   int
	idxHigh  int
	level    string
}

// EPA PM2.5 breakpoints, 2024 revision. Concentrations in µg/m³.
var pm25Bands = []aqiBand{
	{0.0, 9.0, 0, 50, LevelGood},
	{9.1, 35.4, 51, 100, LevelModerate},
	{35.5, 55.4, 101, 150, LevelSensitive},
	{55.5, 125.4, 151, 200, LevelUnhealthy},
	{125.5, 225.4, 201, 300, LevelVeryUnhealthy},
	{225.5, 325.4, 301, 500, LevelHazardous},
}

// ScoreAQI maps a PM2.5 concentration to the EPA Air Quality Index and its
// category label. Concentrations below zero score as zero; concentrations
// above the top breakpoint clamp to the Hazardous ceiling rather than
// extrapolating.
func ScoreAQI(pm25 float64) (int, string) {
	if pm25 < 0 {
		pm25 = 0
	}
	// EPA convention: truncate the concentration to one decimal before
	// locating its band.
	conc := math.Floor(pm25*10) / 10

	top := pm25Bands[len(pm25Bands)-1]
	if conc > top.concHigh {
		return top.idxHigh, top.level
	}

	for _, b := range pm25Bands {
		if conc > b.concHigh {
			continue
		}
		if conc < b.concLow {
			conc = b.concLow
		}
		span := b.concHigh - b.concLow
		idx := float64(b.idxLow) + float64(b.idxHigh-b.idxLow)*(conc-b.concLow)/span
		return int(math.Round(idx)), b.level
	}
	return top.idxHigh, top.level
}

// LevelForAQI returns the category label that contains an already computed
// index value.
func LevelForAQI(aqi int) string {
	switch {
	case aqi <= 50:
		return LevelGood
	case aqi <= 100:
		return LevelModerate
	case aqi <= 150:
		return LevelSensitive
	case aqi <= 200:
		return LevelUnhealthy
	case aqi <= 300:
		return LevelVeryUnhealthy
	default:
		return LevelHazardous
	}
}
