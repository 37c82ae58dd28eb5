package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/eventradar/internal/city"
	"github.com/FranksOps/eventradar/internal/extract"
	"github.com/FranksOps/eventradar/internal/serp"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/FranksOps/eventradar/internal/storage/sqlite"
)

var testCity = city.City{
	ID:        "testville",
	Name:      "Testville",
	Country:   "AR",
	Latitude:  -34.6,
	Longitude: -58.4,
	RadiusKm:  25,
}

// searchLinks are returned by every successful query; three of them fail to fetch.
func searchLinks() []storage.SearchResult {
	var out []storage.SearchResult
	for i := 0; i < 10; i++ {
		path := "good"
		if i%3 == 1 {
			path = "bad"
		}
		out = append(out, storage.SearchResult{
			Title:   fmt.Sprintf("Listing %d", i),
			Link:    fmt.Sprintf("https://site%d.example.com/%s/%d", i%4, path, i),
			Snippet: "Techno night, Saturday",
			Origin:  storage.OriginOrganic,
		})
	}
	return out
}

type fakePages struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakePages) FetchAll(ctx context.Context, urls []string, maxPages int) ([]storage.Page, []storage.ScrapeAttempt) {
	f.mu.Lock()
	f.calls = append(f.calls, urls)
	f.mu.Unlock()

	if len(urls) > maxPages {
		urls = urls[:maxPages]
	}
	var pages []storage.Page
	var attempts []storage.ScrapeAttempt
	for _, u := range urls {
		ok := !strings.Contains(u, "/bad/")
		attempts = append(attempts, storage.ScrapeAttempt{URL: u, Domain: storage.Domain(u), Success: ok})
		if ok {
			pages = append(pages, storage.Page{URL: u, Text: "listing text for " + u})
		}
	}
	return pages, attempts
}

type fakeExtractor struct{ pages int }

func (f *fakeExtractor) ExtractBatch(ctx context.Context, pages []storage.Page, ec extract.Context) []storage.Event {
	f.pages = len(pages)
	var out []storage.Event
	for _, p := range pages {
		out = append(out, storage.Event{
			Name:      "Event from " + p.URL,
			Date:      ec.DateFrom,
			Segment:   "other",
			Setting:   storage.SettingUnknown,
			SourceURL: p.URL,
		})
	}
	// a repeat that storage must ignore
	if len(out) > 0 {
		out = append(out, out[0])
	}
	return out
}

type fakeWeather struct{}

func (fakeWeather) Range(ctx context.Context, lat, lon float64, from, to time.Time) []storage.WeatherDay {
	var out []storage.WeatherDay
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		out = append(out, storage.WeatherDay{
			Date: d, TempMaxC: 25, TempMinC: 15, OutdoorScore: 80,
			Recommendation: storage.RecommendOutdoor, Source: storage.WeatherForecast,
		})
	}
	return out
}

type harness struct {
	svc      *Service
	backend  storage.Backend
	pages    *fakePages
	extract  *fakeExtractor
	progress []Progress
}

func newHarness(t *testing.T, backend storage.Backend, provider serp.Provider) *harness {
	t.Helper()
	if backend == nil {
		b, err := sqlite.New("file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared")
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		backend = b
	}
	cities, err := city.NewStatic([]city.City{testCity})
	if err != nil {
		t.Fatalf("cities: %v", err)
	}

	h := &harness{backend: backend, pages: &fakePages{}, extract: &fakeExtractor{}}
	svc, err := NewService(Config{
		Backend:   backend,
		Cities:    cities,
		Search:    serp.NewAggregator(serp.AggregatorConfig{Provider: provider, Concurrency: 1}),
		Pages:     h.pages,
		Extractor: h.extract,
		Weather:   fakeWeather{},
		Progress:  func(p Progress) { h.progress = append(h.progress, p) },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

// flakyProvider fails its second and fourth calls.
func flakyProvider() serp.Provider {
	var calls atomic.Int32
	return serp.ProviderFunc(func(ctx context.Context, q string, num int) ([]storage.SearchResult, error) {
		if n := calls.Add(1); n == 2 || n == 4 {
			return nil, errors.New("upstream 503")
		}
		return searchLinks(), nil
	})
}

var novRequest = Request{CityID: "testville", DateFrom: "2026-11-10", DateTo: "2026-11-13"}

func TestService_Submit_Invalid(t *testing.T) {
	h := newHarness(t, nil, flakyProvider())
	ctx := context.Background()

	for name, req := range map[string]Request{
		"bad from":  {CityID: "testville", DateFrom: "10/11/2026", DateTo: "2026-11-13"},
		"bad to":    {CityID: "testville", DateFrom: "2026-11-10", DateTo: ""},
		"empty":     {CityID: "testville", DateFrom: "2026-11-10", DateTo: "2026-11-10"},
		"backwards": {CityID: "testville", DateFrom: "2026-11-13", DateTo: "2026-11-10"},
		"13 months": {CityID: "testville", DateFrom: "2026-01-01", DateTo: "2027-02-01"},
	} {
		if _, err := h.svc.Submit(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}

	if _, err := h.svc.Submit(ctx, Request{CityID: "atlantis", DateFrom: "2026-11-10", DateTo: "2026-11-13"}); !errors.Is(err, city.ErrNotFound) {
		t.Errorf("expected city.ErrNotFound, got %v", err)
	}

	runs, err := h.backend.ListRuns(ctx, storage.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs stored for rejected requests, got %d", len(runs))
	}
}

func TestService_Run_ResilientToPartialFailures(t *testing.T) {
	h := newHarness(t, nil, flakyProvider())
	ctx := context.Background()

	runID, err := h.svc.Run(ctx, novRequest)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := h.backend.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.RadiusKm != 25 {
		t.Errorf("expected radius from city, got %d", run.RadiusKm)
	}

	tr := run.Trace
	if tr == nil {
		t.Fatalf("expected saved trace")
	}

	failedQueries, newSum, rawSum := 0, 0, 0
	for _, q := range tr.Queries {
		rawSum += q.ResultCount
		if q.Error != "" {
			failedQueries++
			if q.ResultCount != 0 || q.NewUnique != 0 {
				t.Errorf("failed query %q must record zero counts", q.Query)
			}
		}
		newSum += q.NewUnique
	}
	if failedQueries != 2 {
		t.Errorf("expected 2 failed queries in trace, got %d", failedQueries)
	}
	if newSum != 10 {
		t.Errorf("expected 10 unique results, got new_unique sum %d", newSum)
	}
	// every successful query returns the same links, so raw hits exceed unique ones
	if tr.SearchResultsTotal != rawSum || rawSum <= newSum {
		t.Errorf("expected raw hit total %d (> %d unique), got %d", rawSum, newSum, tr.SearchResultsTotal)
	}

	// 2 direct listings for AR, then the 10 search links
	if tr.DirectFetches != 2 {
		t.Errorf("expected 2 direct fetches, got %d", tr.DirectFetches)
	}
	if len(tr.ScrapeAttempts) != 12 || tr.ScrapeSuccess != 9 || tr.ScrapeFail != 3 {
		t.Errorf("expected 12 attempts with 9 ok / 3 failed, got %d %d/%d", len(tr.ScrapeAttempts), tr.ScrapeSuccess, tr.ScrapeFail)
	}
	for i, a := range tr.ScrapeAttempts {
		want := storage.OriginOrganic
		if i < 2 {
			want = storage.OriginDirect
		}
		if a.Origin != want {
			t.Errorf("attempt %d (%s): expected origin %s, got %s", i, a.URL, want, a.Origin)
		}
	}

	// 9 fetched pages plus the search digest
	if tr.AIInputPages != 10 || h.extract.pages != 10 {
		t.Errorf("expected 10 AI input pages, got trace %d extractor %d", tr.AIInputPages, h.extract.pages)
	}
	if tr.EventsExtracted != 11 {
		t.Errorf("expected 11 drafts (one repeat), got %d", tr.EventsExtracted)
	}
	if tr.EventsBySource[DigestURL] != 1 {
		t.Errorf("expected digest events keyed by its pseudo-URL, got %v", tr.EventsBySource)
	}
	if len(tr.TopDomains) != 4 || tr.TopDomains[0].Count != 3 {
		t.Errorf("unexpected top domains: %+v", tr.TopDomains)
	}

	events, err := h.backend.Events(ctx, runID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("expected duplicate insert ignored leaving 10 events, got %d", len(events))
	}

	weather, err := h.backend.WeatherDays(ctx, runID)
	if err != nil {
		t.Fatalf("WeatherDays: %v", err)
	}
	if len(weather) != 3 {
		t.Errorf("expected 3 weather days, got %d", len(weather))
	}

	wantFractions := []float64{0.10, 0.20, 0.35, 0.45, 0.60, 0.70, 0.85, 1.0}
	if len(h.progress) != len(wantFractions) {
		t.Fatalf("expected %d progress updates, got %d", len(wantFractions), len(h.progress))
	}
	for i, p := range h.progress {
		if p.Fraction != wantFractions[i] || p.RunID != runID || p.Message == "" {
			t.Errorf("progress %d: unexpected %+v", i, p)
		}
	}
}

func TestService_Run_SkipsLinksAlreadyFetchedDirectly(t *testing.T) {
	direct := "https://www.eventbrite.com/d/testville/events/"
	provider := serp.ProviderFunc(func(ctx context.Context, q string, num int) ([]storage.SearchResult, error) {
		return []storage.SearchResult{
			{Title: "Eventbrite", Link: direct, Origin: storage.OriginOrganic},
			{Title: "No link"},
			{Title: "Other", Link: "https://other.example.com/agenda", Origin: storage.OriginOrganic},
		}, nil
	})
	h := newHarness(t, nil, provider)

	if _, err := h.svc.Run(context.Background(), novRequest); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.pages.calls) != 2 {
		t.Fatalf("expected direct and bulk fetch calls, got %d", len(h.pages.calls))
	}
	bulk := h.pages.calls[1]
	if len(bulk) != 1 || bulk[0] != "https://other.example.com/agenda" {
		t.Errorf("expected only the uncovered link in bulk fetch, got %v", bulk)
	}
}

func TestService_Run_NoProviderUsesFallback(t *testing.T) {
	h := newHarness(t, nil, nil)
	runID, err := h.svc.Run(context.Background(), novRequest)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	run, _ := h.backend.GetRun(context.Background(), runID)
	if len(run.Trace.Queries) != 1 || run.Trace.Queries[0].Query != serp.FallbackQuery {
		t.Errorf("expected single fallback trace entry, got %+v", run.Trace.Queries)
	}
}

type failingInserts struct {
	storage.Backend
}

func (f failingInserts) InsertEvent(ctx context.Context, runID string, e *storage.Event) (bool, error) {
	return false, errors.New("disk full")
}

func TestService_Execute_FailureKeepsPartialTrace(t *testing.T) {
	b, err := sqlite.New("file:pipeline_failure?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer b.Close()

	h := newHarness(t, failingInserts{b}, flakyProvider())
	ctx := context.Background()

	runID, err := h.svc.Run(ctx, novRequest)
	if err == nil || !strings.Contains(err.Error(), "pipeline: persist:") {
		t.Fatalf("expected persist stage error, got %v", err)
	}
	if runID == "" {
		t.Fatalf("expected run ID alongside the error")
	}

	run, err := b.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != storage.RunFailed {
		t.Errorf("expected failed status, got %s", run.Status)
	}
	if run.Trace == nil || !strings.Contains(run.Trace.Error, "disk full") {
		t.Fatalf("expected trace error recorded, got %+v", run.Trace)
	}
	if len(run.Trace.Queries) == 0 || run.Trace.EventsExtracted == 0 {
		t.Errorf("expected stages before the failure kept in the trace")
	}
	if len(h.progress) != 5 {
		t.Errorf("expected progress to stop after extraction, got %d updates", len(h.progress))
	}
}

func TestBuildDigest(t *testing.T) {
	if _, ok := BuildDigest(nil); ok {
		t.Errorf("expected no digest without results")
	}

	var results []storage.SearchResult
	for i := 0; i < 40; i++ {
		results = append(results, storage.SearchResult{Title: fmt.Sprintf("T%d", i), Snippet: "s", Link: fmt.Sprintf("https://x.com/%d", i)})
	}
	page, ok := BuildDigest(results)
	if !ok || page.URL != DigestURL {
		t.Fatalf("expected digest page, got %+v %v", page, ok)
	}
	if !strings.HasPrefix(page.Text, "=== GOOGLE SEARCH RESULTS ===\n") {
		t.Errorf("expected digest header")
	}
	if !strings.Contains(page.Text, "[30] T29\n    s\n    URL: https://x.com/29") {
		t.Errorf("expected numbered entries, got:\n%s", page.Text)
	}
	if strings.Contains(page.Text, "[31]") {
		t.Errorf("expected digest capped at %d results", DigestMaxResults)
	}

	if _, ok := BuildDigest([]storage.SearchResult{{Title: "x"}}); ok {
		t.Errorf("expected tiny digest to be dropped")
	}
}
