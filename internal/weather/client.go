package weather

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/eventradar/internal/storage"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"

	forecastVars = "temperature_2m_max,temperature_2m_min,precipitation_probability_max,wind_speed_10m_max,weather_code"
	archiveVars  = "temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max,weather_code"
)

// dailySeries is the "daily" block of an Open-Meteo response. Any value may be null.
type dailySeries struct {
	Time          []string   `json:"time"`
	TempMax       []*float64 `json:"temperature_2m_max"`
	TempMin       []*float64 `json:"temperature_2m_min"`
	PrecipProbMax []*float64 `json:"precipitation_probability_max"`
	PrecipSum     []*float64 `json:"precipitation_sum"`
	WindSpeedMax  []*float64 `json:"wind_speed_10m_max"`
	WeatherCode   []*float64 `json:"weather_code"`
}

type dailyResponse struct {
	Daily dailySeries `json:"daily"`
}

// at returns s[i], or nil when the series is short.
func at(s []*float64, i int) *float64 {
	if i < len(s) {
		return s[i]
	}
	return nil
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func code(v *float64) *int {
	if v == nil {
		return nil
	}
	c := int(*v)
	return &c
}

func (e *Enricher) daily(ctx context.Context, base string, lat, lon float64, start, end time.Time, vars string) (*dailySeries, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("daily", vars)
	q.Set("start_date", storage.DayKey(start))
	q.Set("end_date", storage.DayKey(end))
	q.Set("timezone", "auto")

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var resp dailyResponse
	if err := e.client.GetJSON(ctx, base+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	return &resp.Daily, nil
}
