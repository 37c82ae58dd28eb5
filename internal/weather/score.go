package weather

import (
	"fmt"
	"time"

	"github.com/FranksOps/eventradar/internal/storage"
)

// Score rates outdoor suitability from 0 to 100. Missing temperatures count as
// 22 (max) and 15 (min).
func Score(tempMax, tempMin *float64, precipProb, windKmh float64) int {
	hi, lo := 22.0, 15.0
	if tempMax != nil {
		hi = *tempMax
	}
	if tempMin != nil {
		lo = *tempMin
	}

	score := 100
	switch avg := (hi + lo) / 2; {
	case avg < 10:
		score -= 40
	case avg < 15:
		score -= 20
	case avg < 18:
		score -= 5
	case avg > 35:
		score -= 35
	case avg > 30:
		score -= 15
	}

	switch {
	case precipProb > 70:
		score -= 35
	case precipProb > 50:
		score -= 20
	case precipProb > 30:
		score -= 10
	}

	switch {
	case windKmh > 40:
		score -= 25
	case windKmh > 25:
		score -= 10
	}

	return max(0, min(100, score))
}

// Recommend maps a score to indoor/outdoor advice.
func Recommend(score int) storage.Recommendation {
	switch {
	case score >= 75:
		return storage.RecommendOutdoor
	case score >= 50:
		return storage.RecommendEither
	}
	return storage.RecommendIndoor
}

var wmoLabels = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Fog with rime",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with hail",
	99: "Thunderstorm with heavy hail",
}

// Conditions returns the label for a WMO weather code.
func Conditions(code *int) string {
	if code == nil {
		return "Unknown"
	}
	if label, ok := wmoLabels[*code]; ok {
		return label
	}
	return fmt.Sprintf("Code %d", *code)
}

// climateByMonth is a rough temperate-zone daily mean, January first.
var climateByMonth = [12]float64{5, 7, 12, 16, 20, 25, 28, 27, 23, 17, 10, 6}

// Estimate is the no-data climate guess for day at latitude lat. Southern
// latitudes use the month six away.
func Estimate(day time.Time, lat float64) storage.WeatherDay {
	m := int(day.Month()) - 1
	if lat < 0 {
		m = (m + 6) % 12
	}
	base := climateByMonth[m]
	return storage.WeatherDay{
		Date:           day,
		TempMaxC:       base + 4,
		TempMinC:       base - 4,
		PrecipProb:     30,
		WindKmh:        15,
		Conditions:     "Estimated (no data)",
		OutdoorScore:   60,
		Recommendation: storage.RecommendEither,
		Source:         storage.WeatherEstimate,
	}
}
