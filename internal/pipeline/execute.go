package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/eventradar/internal/city"
	"github.com/FranksOps/eventradar/internal/extract"
	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/serp"
	"github.com/FranksOps/eventradar/internal/storage"
)

// TopDomainsLimit bounds the search-domain histogram kept in the trace.
const TopDomainsLimit = 15

// execution carries one run through the stages. It is confined to the
// goroutine calling Execute, which is the only writer of trace.
type execution struct {
	svc   *Service
	run   *storage.Run
	city  *city.City
	trace *storage.Trace

	results []storage.SearchResult
	pages   []storage.Page
	events  []storage.Event
}

// Execute runs every stage for a submitted run. On failure the partial trace
// is saved, the run is marked failed and the stage error is returned.
func (s *Service) Execute(ctx context.Context, run *storage.Run) error {
	x := &execution{svc: s, run: run, trace: storage.NewTrace()}

	stages := []struct {
		name     string
		fraction float64
		fn       func(context.Context) (string, error)
	}{
		{"resolve", 0, x.resolve},
		{"search", 0.10, x.search},
		{"direct", 0.20, x.direct},
		{"fetch", 0.35, x.fetch},
		{"prepare", 0.45, x.prepare},
		{"extract", 0.60, x.extract},
		{"persist", 0.70, x.persist},
		{"weather", 0.85, x.weather},
		{"complete", 1.0, x.complete},
	}

	started := time.Now()
	for _, st := range stages {
		t0 := time.Now()
		msg, err := st.fn(ctx)
		metrics.ObserveStage(st.name, time.Since(t0))
		if err != nil {
			return x.fail(ctx, st.name, err)
		}
		if st.fraction > 0 {
			s.cfg.Progress(Progress{RunID: run.ID, Stage: st.name, Fraction: st.fraction, Message: msg})
		}
	}

	metrics.RecordRun(string(storage.RunCompleted))
	s.logger.Info("run completed", "run_id", run.ID, "events", x.trace.EventsExtracted, "elapsed", time.Since(started))
	return nil
}

func (x *execution) resolve(ctx context.Context) (string, error) {
	c, err := x.svc.cfg.Cities.Lookup(ctx, x.run.CityID)
	if err != nil {
		return "", err
	}
	x.city = c
	return "", nil
}

func (x *execution) search(ctx context.Context) (string, error) {
	out, err := x.svc.cfg.Search.Search(ctx, serp.Request{
		City:     x.run.CityName,
		Country:  x.run.Country,
		DateFrom: x.run.DateFrom,
		DateTo:   x.run.DateTo,
		Segments: x.run.Segments,
	})
	if err != nil {
		return "", err
	}
	x.results = out.Results
	x.trace.Queries = out.Queries
	x.trace.SearchResultsTotal = out.Total
	return fmt.Sprintf("Found %d search results from %d queries", len(out.Results), len(out.Queries)), nil
}

func (x *execution) direct(ctx context.Context) (string, error) {
	urls := x.city.DirectURLs()
	pages, attempts := x.svc.cfg.Pages.FetchAll(ctx, urls, len(urls))
	for i := range attempts {
		attempts[i].Origin = storage.OriginDirect
	}
	x.trace.DirectFetches = len(urls)
	x.trace.AddAttempts(attempts)
	x.pages = append(x.pages, pages...)
	return fmt.Sprintf("Fetched %d of %d direct sources", len(pages), len(urls)), nil
}

// fetch retrieves search links not already covered by the direct stage.
func (x *execution) fetch(ctx context.Context) (string, error) {
	covered := make(map[string]bool, len(x.trace.ScrapeAttempts))
	for _, a := range x.trace.ScrapeAttempts {
		covered[a.URL] = true
	}

	var urls []string
	origin := make(map[string]storage.Origin)
	for _, r := range x.results {
		if r.Link == "" || covered[r.Link] {
			continue
		}
		covered[r.Link] = true
		urls = append(urls, r.Link)
		origin[r.Link] = r.Origin
	}

	pages, attempts := x.svc.cfg.Pages.FetchAll(ctx, urls, x.svc.cfg.MaxPages)
	for i := range attempts {
		attempts[i].Origin = origin[attempts[i].URL]
	}
	x.trace.AddAttempts(attempts)
	x.pages = append(x.pages, pages...)
	return fmt.Sprintf("Fetched %d of %d search result pages", len(pages), len(attempts)), nil
}

func (x *execution) prepare(ctx context.Context) (string, error) {
	if digest, ok := BuildDigest(x.results); ok {
		x.pages = append(x.pages, digest)
	}
	x.trace.AIInputPages = len(x.pages)
	return fmt.Sprintf("Prepared %d pages for extraction", len(x.pages)), nil
}

func (x *execution) extract(ctx context.Context) (string, error) {
	x.events = x.svc.cfg.Extractor.ExtractBatch(ctx, x.pages, extract.Context{
		City:     x.run.CityName,
		DateFrom: x.run.DateFrom,
		DateTo:   x.run.DateTo,
	})

	x.trace.EventsExtracted = len(x.events)
	for _, e := range x.events {
		src := storage.Domain(e.SourceURL)
		if src == "" {
			src = e.SourceURL
		}
		x.trace.EventsBySource[src]++
	}

	links := make([]string, 0, len(x.results))
	for _, r := range x.results {
		links = append(links, r.Link)
	}
	x.trace.TopDomains = storage.CountDomains(links, TopDomainsLimit)
	return fmt.Sprintf("Extracted %d events", len(x.events)), nil
}

func (x *execution) persist(ctx context.Context) (string, error) {
	inserted := 0
	for i := range x.events {
		ok, err := x.svc.cfg.Backend.InsertEvent(ctx, x.run.ID, &x.events[i])
		if err != nil {
			return "", err
		}
		if ok {
			inserted++
		}
	}
	return fmt.Sprintf("Stored %d events (%d duplicates ignored)", inserted, len(x.events)-inserted), nil
}

func (x *execution) weather(ctx context.Context) (string, error) {
	days := x.svc.cfg.Weather.Range(ctx, x.city.Latitude, x.city.Longitude, x.run.DateFrom, x.run.DateTo)
	for i := range days {
		if err := x.svc.cfg.Backend.UpsertWeatherDay(ctx, x.run.ID, &days[i]); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Stored weather for %d days", len(days)), nil
}

func (x *execution) complete(ctx context.Context) (string, error) {
	if err := x.svc.cfg.Backend.SaveTrace(ctx, x.run.ID, x.trace); err != nil {
		return "", err
	}
	if err := x.svc.cfg.Backend.UpdateRunStatus(ctx, x.run.ID, storage.RunCompleted); err != nil {
		return "", err
	}
	x.run.Status = storage.RunCompleted
	x.run.Trace = x.trace
	return "Run complete", nil
}

// fail records err in the trace and marks the run failed. Secondary errors
// are logged; the stage error is what callers see.
func (x *execution) fail(ctx context.Context, stage string, err error) error {
	err = fmt.Errorf("pipeline: %s: %w", stage, err)
	x.trace.Error = err.Error()

	// ctx may already be cancelled.
	bg := context.WithoutCancel(ctx)
	if serr := x.svc.cfg.Backend.SaveTrace(bg, x.run.ID, x.trace); serr != nil {
		x.svc.logger.Error("failed to save trace", "run_id", x.run.ID, "err", serr)
	}
	if uerr := x.svc.cfg.Backend.UpdateRunStatus(bg, x.run.ID, storage.RunFailed); uerr != nil {
		x.svc.logger.Error("failed to mark run failed", "run_id", x.run.ID, "err", uerr)
	}
	x.run.Status = storage.RunFailed
	x.run.Trace = x.trace

	metrics.RecordRun(string(storage.RunFailed))
	x.svc.logger.Error("run failed", "run_id", x.run.ID, "stage", stage, "err", err)
	return err
}
