// Package weather enriches each day of a date range with an outdoor
// suitability outlook from Open-Meteo, falling back to a climate estimate.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/FranksOps/eventradar/pkg/httpclient"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config configures an Enricher.
type Config struct {
	ForecastURL string
	ArchiveURL  string
	// HorizonDays is how far past today the forecast is trusted (0 = 14).
	HorizonDays int
	// HistoryYears is how many past years are averaged (0 = 10).
	HistoryYears int
	// Timeout bounds one API call (0 = 30s).
	Timeout time.Duration
	// Concurrency bounds historical lookups (0 = 4).
	Concurrency int
	// QPS paces API calls (0 = unpaced).
	QPS    float64
	Logger *slog.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// Enricher produces one WeatherDay per calendar day.
type Enricher struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(cfg Config) (*Enricher, error) {
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 14
	}
	if cfg.HistoryYears <= 0 {
		cfg.HistoryYears = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, Limiter: limiter})
	if err != nil {
		return nil, fmt.Errorf("weather: client: %w", err)
	}

	return &Enricher{cfg: cfg, client: client, logger: logger}, nil
}

// Range returns weather for every day in [from, to), sorted by date. Days
// within the forecast horizon use one batched forecast call; the rest use
// historical averages. Upstream failures degrade to Estimate and are never
// returned.
func (e *Enricher) Range(ctx context.Context, lat, lon float64, from, to time.Time) []storage.WeatherDay {
	today := truncateDay(e.cfg.Now())
	horizon := today.AddDate(0, 0, e.cfg.HorizonDays)

	var near, far []time.Time
	for d := truncateDay(from); d.Before(to); d = d.AddDate(0, 0, 1) {
		if !d.Before(today) && !d.After(horizon) {
			near = append(near, d)
		} else {
			far = append(far, d)
		}
	}

	out := make([]storage.WeatherDay, 0, len(near)+len(far))
	out = append(out, e.forecast(ctx, lat, lon, near)...)
	out = append(out, e.historical(ctx, lat, lon, far)...)

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for _, d := range out {
		metrics.RecordWeatherDay(string(d.Source))
	}
	return out
}

func (e *Enricher) forecast(ctx context.Context, lat, lon float64, days []time.Time) []storage.WeatherDay {
	if len(days) == 0 {
		return nil
	}

	series, err := e.daily(ctx, e.cfg.ForecastURL, lat, lon, days[0], days[len(days)-1], forecastVars)
	if err != nil {
		e.logger.Warn("forecast failed, using estimates", "days", len(days), "err", err)
	}

	byDay := make(map[string]storage.WeatherDay)
	if series != nil {
		for i, key := range series.Time {
			hi, lo := at(series.TempMax, i), at(series.TempMin, i)
			if hi == nil || lo == nil {
				continue
			}
			precip, wind := orZero(at(series.PrecipProbMax, i)), orZero(at(series.WindSpeedMax, i))
			score := Score(hi, lo, precip, wind)
			byDay[key] = storage.WeatherDay{
				TempMaxC:       *hi,
				TempMinC:       *lo,
				PrecipProb:     precip,
				WindKmh:        wind,
				Conditions:     Conditions(code(at(series.WeatherCode, i))),
				OutdoorScore:   score,
				Recommendation: Recommend(score),
				Source:         storage.WeatherForecast,
			}
		}
	}

	out := make([]storage.WeatherDay, 0, len(days))
	for _, d := range days {
		wd, ok := byDay[storage.DayKey(d)]
		if !ok {
			wd = Estimate(d, lat)
		}
		wd.Date = d
		out = append(out, wd)
	}
	return out
}

func (e *Enricher) historical(ctx context.Context, lat, lon float64, days []time.Time) []storage.WeatherDay {
	out := make([]storage.WeatherDay, len(days))
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i, d := range days {
		g.Go(func() error {
			out[i] = e.average(ctx, lat, lon, d)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// average folds the same calendar day over the last HistoryYears years.
func (e *Enricher) average(ctx context.Context, lat, lon float64, day time.Time) storage.WeatherDay {
	thisYear := e.cfg.Now().Year()
	want := make(map[string]bool, e.cfg.HistoryYears)
	var first, last time.Time
	for off := 1; off <= e.cfg.HistoryYears; off++ {
		past := sameDayIn(day, thisYear-off)
		want[storage.DayKey(past)] = true
		if first.IsZero() || past.Before(first) {
			first = past
		}
		if past.After(last) {
			last = past
		}
	}

	series, err := e.daily(ctx, e.cfg.ArchiveURL, lat, lon, first, last, archiveVars)
	if err != nil {
		e.logger.Warn("historical lookup failed, using estimate", "date", storage.DayKey(day), "err", err)
		return Estimate(day, lat)
	}

	var hi, lo, wind []float64
	var years, rainy int
	codes := make(map[int]int)
	for i, key := range series.Time {
		if !want[key] {
			continue
		}
		years++
		if v := at(series.TempMax, i); v != nil {
			hi = append(hi, *v)
		}
		if v := at(series.TempMin, i); v != nil {
			lo = append(lo, *v)
		}
		wind = append(wind, orZero(at(series.WindSpeedMax, i)))
		if orZero(at(series.PrecipSum, i)) > 1.0 {
			rainy++
		}
		if c := code(at(series.WeatherCode, i)); c != nil {
			codes[*c]++
		}
	}
	if years == 0 || len(hi) == 0 || len(lo) == 0 {
		return Estimate(day, lat)
	}

	avgHi, avgLo, avgWind := round1(mean(hi)), round1(mean(lo)), round1(mean(wind))
	precip := math.Round(float64(rainy) / float64(years) * 100)
	score := Score(&avgHi, &avgLo, precip, avgWind)

	return storage.WeatherDay{
		Date:           day,
		TempMaxC:       avgHi,
		TempMinC:       avgLo,
		PrecipProb:     precip,
		WindKmh:        avgWind,
		Conditions:     Conditions(modal(codes)) + " (historical avg)",
		OutdoorScore:   score,
		Recommendation: Recommend(score),
		Source:         storage.WeatherHistorical,
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sameDayIn moves day to year, mapping Feb 29 to Feb 28 in non-leap years.
func sameDayIn(day time.Time, year int) time.Time {
	d := day.Day()
	if day.Month() == time.February && d == 29 && !isLeap(year) {
		d = 28
	}
	return time.Date(year, day.Month(), d, 0, 0, 0, 0, time.UTC)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// modal returns the most frequent code, the smallest on ties, or nil.
func modal(counts map[int]int) *int {
	best, bestN := 0, 0
	for c, n := range counts {
		if n > bestN || (n == bestN && c < best) {
			best, bestN = c, n
		}
	}
	if bestN == 0 {
		return nil
	}
	return &best
}
