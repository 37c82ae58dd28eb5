// Package pipeline sequences a discovery run: search, fetch, extract,
// persist and weather enrichment, recording a trace of every decision.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/eventradar/internal/city"
	"github.com/FranksOps/eventradar/internal/extract"
	"github.com/FranksOps/eventradar/internal/query"
	"github.com/FranksOps/eventradar/internal/serp"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/google/uuid"
)

// ErrInvalidRequest is returned by Submit for malformed requests.
var ErrInvalidRequest = errors.New("pipeline: invalid request")

// MaxRangeMonths bounds the calendar months a run may touch. Longer ranges
// would lose later months to the search query cap.
const MaxRangeMonths = 12

// Searcher runs the search stage.
type Searcher interface {
	Search(ctx context.Context, req serp.Request) (*serp.Outcome, error)
}

// PageSource fetches page text for a list of URLs.
type PageSource interface {
	FetchAll(ctx context.Context, urls []string, maxPages int) ([]storage.Page, []storage.ScrapeAttempt)
}

// EventExtractor turns pages into deduplicated, brand-flagged events.
type EventExtractor interface {
	ExtractBatch(ctx context.Context, pages []storage.Page, ec extract.Context) []storage.Event
}

// WeatherSource produces one WeatherDay per day in [from, to).
type WeatherSource interface {
	Range(ctx context.Context, lat, lon float64, from, to time.Time) []storage.WeatherDay
}

// Progress is one stage notification.
type Progress struct {
	RunID    string  `json:"run_id"`
	Stage    string  `json:"stage"`
	Fraction float64 `json:"fraction"`
	Message  string  `json:"message"`
}

// ProgressFunc receives stage notifications. It must not block for long.
type ProgressFunc func(Progress)

// Request asks for a run. Dates are YYYY-MM-DD and DateTo is exclusive.
type Request struct {
	CityID   string   `json:"city_id" binding:"required"`
	DateFrom string   `json:"date_from" binding:"required"`
	DateTo   string   `json:"date_to" binding:"required"`
	Segments []string `json:"segments"`
	// RadiusKm defaults to the city's radius.
	RadiusKm int `json:"radius_km"`
}

// Config wires a Service. Every collaborator except Progress and Logger is required.
type Config struct {
	Backend   storage.Backend
	Cities    city.Directory
	Search    Searcher
	Pages     PageSource
	Extractor EventExtractor
	Weather   WeatherSource
	Progress  ProgressFunc
	// MaxPages caps bulk fetches of search links (0 = 12).
	MaxPages int
	Logger   *slog.Logger
}

// Service runs discovery pipelines.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// NewService validates cfg and creates a Service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Backend == nil:
		return nil, errors.New("pipeline: backend is required")
	case cfg.Cities == nil:
		return nil, errors.New("pipeline: city directory is required")
	case cfg.Search == nil, cfg.Pages == nil, cfg.Extractor == nil, cfg.Weather == nil:
		return nil, errors.New("pipeline: search, pages, extractor and weather are required")
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 12
	}
	if cfg.Progress == nil {
		cfg.Progress = func(Progress) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}, nil
}

// Submit validates req, resolves the city and stores a new running Run.
// Nothing is stored when validation or the city lookup fails.
func (s *Service) Submit(ctx context.Context, req Request) (*storage.Run, error) {
	from, err := storage.ParseDay(strings.TrimSpace(req.DateFrom))
	if err != nil {
		return nil, fmt.Errorf("%w: date_from: %v", ErrInvalidRequest, err)
	}
	to, err := storage.ParseDay(strings.TrimSpace(req.DateTo))
	if err != nil {
		return nil, fmt.Errorf("%w: date_to: %v", ErrInvalidRequest, err)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty date range %s..%s", ErrInvalidRequest, req.DateFrom, req.DateTo)
	}
	if n := len(query.Months(from, to)); n > MaxRangeMonths {
		return nil, fmt.Errorf("%w: range spans %d months, at most %d are searched", ErrInvalidRequest, n, MaxRangeMonths)
	}

	c, err := s.cfg.Cities.Lookup(ctx, req.CityID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	radius := req.RadiusKm
	if radius <= 0 {
		radius = c.RadiusKm
	}

	run := &storage.Run{
		ID:        uuid.NewString(),
		CityID:    c.ID,
		CityName:  c.Name,
		Country:   c.Country,
		DateFrom:  from,
		DateTo:    to,
		Segments:  cleanSegments(req.Segments),
		RadiusKm:  radius,
		Status:    storage.RunRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.cfg.Backend.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("pipeline: create run: %w", err)
	}

	s.logger.Info("run submitted", "run_id", run.ID, "city", c.Name, "from", req.DateFrom, "to", req.DateTo)
	return run, nil
}

// Run submits req and executes it, returning the run ID. The ID is returned
// alongside an execution error so the failed run can still be inspected.
func (s *Service) Run(ctx context.Context, req Request) (string, error) {
	run, err := s.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	return run.ID, s.Execute(ctx, run)
}

func cleanSegments(in []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, seg := range in {
		seg = strings.ToLower(strings.TrimSpace(seg))
		if seg != "" && !seen[seg] {
			seen[seg] = true
			out = append(out, seg)
		}
	}
	return out
}
