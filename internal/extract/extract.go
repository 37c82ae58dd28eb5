// Package extract turns page text into structured event drafts, using an AI
// model when one is configured and a line-scanning heuristic otherwise.
package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/eventradar/internal/analyzer"
	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/storage"
)

// Model completes a single prompt.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Context is the run information an extraction is scoped to. DateTo is exclusive.
type Context struct {
	City     string
	DateFrom time.Time
	DateTo   time.Time
}

// Config configures an Extractor.
type Config struct {
	// Model is optional. Without one every page goes through the fallback.
	Model Model
	// Brand flags own events in ExtractBatch. Nil flags nothing.
	Brand *analyzer.BrandMatcher
	// Timeout bounds one model call (0 = 60s).
	Timeout time.Duration
	Logger  *slog.Logger
}

// Extractor produces event drafts from pages.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract returns the drafts found on one page. Any model failure falls back
// to the heuristic path, so the result is never an error.
func (x *Extractor) Extract(ctx context.Context, page storage.Page, ec Context) []storage.Event {
	if x.cfg.Model == nil {
		events := Fallback(page, ec)
		metrics.RecordExtraction("fallback", len(events))
		return events
	}

	callCtx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
	defer cancel()

	raw, err := x.cfg.Model.Complete(callCtx, BuildPrompt(page.Text, ec))
	if err == nil {
		var events []storage.Event
		if events, err = Parse(raw, page.URL); err == nil {
			metrics.RecordExtraction("ai", len(events))
			return events
		}
	}

	x.logger.Warn("ai extraction failed, using fallback", "url", page.URL, "err", err)
	events := Fallback(page, ec)
	metrics.RecordExtraction("fallback", len(events))
	return events
}

// ExtractBatch extracts every page in order, drops duplicates and flags own
// events.
func (x *Extractor) ExtractBatch(ctx context.Context, pages []storage.Page, ec Context) []storage.Event {
	var all []storage.Event
	for _, p := range pages {
		all = append(all, x.Extract(ctx, p, ec)...)
	}

	events := Dedup(all)
	x.cfg.Brand.Flag(events)

	x.logger.Info("extracted events", "pages", len(pages), "drafts", len(all), "unique", len(events))
	return events
}

// Dedup keeps the first event for each (name, date, venue), comparing name and
// venue case-insensitively after trimming.
func Dedup(events []storage.Event) []storage.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]storage.Event, 0, len(events))
	for _, e := range events {
		key := strings.ToLower(strings.TrimSpace(e.Name)) + "\x00" +
			storage.DayKey(e.Date) + "\x00" +
			strings.ToLower(strings.TrimSpace(e.VenueName))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
