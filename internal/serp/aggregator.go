package serp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/query"
	"github.com/FranksOps/eventradar/internal/sources"
	"github.com/FranksOps/eventradar/internal/storage"
	"golang.org/x/sync/errgroup"
)

// FallbackQuery is the synthetic trace entry recorded when no provider is configured.
const FallbackQuery = "fallback (no API key)"

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Provider runs the queries. Nil switches to the static listing fallback.
	Provider Provider
	// Concurrency bounds in-flight queries (0 = default 4)
	Concurrency int
	// NumResults is the per-query result hint (0 = default 20)
	NumResults int
	// Timeout bounds each query (0 = default 15s)
	Timeout time.Duration
	Logger  *slog.Logger
}

// Aggregator fans the built queries out to a Provider and merges the results.
type Aggregator struct {
	cfg    AggregatorConfig
	logger *slog.Logger
}

// Request describes one aggregation. DateTo is exclusive.
type Request struct {
	City       string
	Country    string
	DateFrom   time.Time
	DateTo     time.Time
	Segments   []string
	NumResults int
}

// Outcome is the merged, URL-deduplicated result list plus per-query provenance.
type Outcome struct {
	Results []storage.SearchResult
	Queries []storage.QueryTrace
	// Total counts raw hits before dedup.
	Total int
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = 20
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cfg: cfg, logger: logger}
}

type queryResult struct {
	results []storage.SearchResult
	err     error
}

// Search builds the queries for req, runs them and merges the results in
// issued order. A failing query is recorded with zero results and never
// aborts the aggregation; only context cancellation is returned as an error.
func (a *Aggregator) Search(ctx context.Context, req Request) (*Outcome, error) {
	if a.cfg.Provider == nil {
		return a.fallback(req), nil
	}

	num := req.NumResults
	if num <= 0 {
		num = a.cfg.NumResults
	}

	queries := query.Build(query.Params{
		City:     req.City,
		Country:  req.Country,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Segments: req.Segments,
	})

	slots := make([]queryResult, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			qCtx, cancel := context.WithTimeout(gCtx, a.cfg.Timeout)
			defer cancel()
			res, err := a.cfg.Provider.Search(qCtx, q.Text, num)
			slots[i] = queryResult{results: res, err: err}
			metrics.RecordQuery(string(q.Intent), err)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("serp: %w", err)
	}

	out := &Outcome{}
	seen := make(map[string]bool)
	for i, q := range queries {
		slot := slots[i]
		entry := storage.QueryTrace{Query: q.Text, Intent: string(q.Intent)}
		if slot.err != nil {
			a.logger.Warn("search query failed", "query", q.Text, "err", slot.err)
			entry.Error = slot.err.Error()
			out.Queries = append(out.Queries, entry)
			continue
		}

		entry.ResultCount = len(slot.results)
		out.Total += len(slot.results)
		for _, r := range slot.results {
			if seen[r.Link] {
				continue
			}
			seen[r.Link] = true
			out.Results = append(out.Results, r)
			entry.NewUnique++
		}
		out.Queries = append(out.Queries, entry)
	}

	a.logger.Info("search aggregated",
		"city", req.City,
		"queries", len(queries),
		"raw", out.Total,
		"unique", len(out.Results),
	)
	return out, nil
}

func (a *Aggregator) fallback(req Request) *Outcome {
	last := req.DateTo.AddDate(0, 0, -1)
	listings := sources.FallbackURLs(req.City, req.Country)

	out := &Outcome{}
	for _, l := range listings {
		out.Results = append(out.Results, storage.SearchResult{
			Title:   fmt.Sprintf("%s - Events in %s", l.Name, req.City),
			Link:    l.URL,
			Snippet: fmt.Sprintf("Check %s for events in %s from %s to %s", l.Name, req.City, storage.DayKey(req.DateFrom), storage.DayKey(last)),
			Origin:  storage.OriginFallback,
		})
	}
	out.Total = len(out.Results)
	out.Queries = []storage.QueryTrace{{
		Query:       FallbackQuery,
		ResultCount: len(out.Results),
		NewUnique:   len(out.Results),
		Intent:      "fallback",
	}}

	a.logger.Warn("no search provider configured, using static listings", "city", req.City, "listings", len(out.Results))
	return out
}
