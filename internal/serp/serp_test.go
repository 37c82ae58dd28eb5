package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/eventradar/internal/storage"
)

func testRequest() Request {
	from, _ := storage.ParseDay("2026-06-01")
	to, _ := storage.ParseDay("2026-06-15")
	return Request{City: "Madrid", Country: "ES", DateFrom: from, DateTo: to, Segments: []string{"electronic"}}
}

func TestAggregator_DedupAndProvenance(t *testing.T) {
	// Every query returns one shared URL plus one URL unique to the query.
	provider := ProviderFunc(func(ctx context.Context, q string, num int) ([]storage.SearchResult, error) {
		return []storage.SearchResult{
			{Title: "shared", Link: "https://shared.example/events", Origin: storage.OriginOrganic},
			{Title: q, Link: "https://example.com/" + strings.ReplaceAll(q, " ", "-"), Origin: storage.OriginOrganic},
		}, nil
	})

	agg := NewAggregator(AggregatorConfig{Provider: provider, Concurrency: 3})
	out, err := agg.Search(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for _, r := range out.Results {
		if seen[r.Link] {
			t.Errorf("Duplicate link %s", r.Link)
		}
		seen[r.Link] = true
	}

	sum := 0
	for _, q := range out.Queries {
		sum += q.NewUnique
		if q.ResultCount != 2 {
			t.Errorf("Expected result_count 2 for %q, got %d", q.Query, q.ResultCount)
		}
	}
	if sum != len(out.Results) {
		t.Errorf("Expected sum of new_unique (%d) to equal merged results (%d)", sum, len(out.Results))
	}
	if out.Queries[0].NewUnique != 2 {
		t.Errorf("Expected first query to own the shared URL, got new_unique=%d", out.Queries[0].NewUnique)
	}
	if out.Total != 2*len(out.Queries) {
		t.Errorf("Expected raw total %d, got %d", 2*len(out.Queries), out.Total)
	}
}

func TestAggregator_FailingQueries(t *testing.T) {
	var calls atomic.Int32
	provider := ProviderFunc(func(ctx context.Context, q string, num int) ([]storage.SearchResult, error) {
		n := calls.Add(1)
		if n == 2 || n == 4 {
			return nil, errors.New("upstream 503")
		}
		return []storage.SearchResult{{Title: q, Link: "https://example.com/" + fmt.Sprint(n)}}, nil
	})

	agg := NewAggregator(AggregatorConfig{Provider: provider, Concurrency: 1})
	out, err := agg.Search(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Expected failures to be absorbed, got %v", err)
	}

	failed := 0
	for _, q := range out.Queries {
		if q.Error != "" {
			failed++
			if q.ResultCount != 0 || q.NewUnique != 0 {
				t.Errorf("Failed query %q should record zero counts, got %+v", q.Query, q)
			}
		}
	}
	if failed != 2 {
		t.Errorf("Expected 2 failed queries in the trace, got %d", failed)
	}
	if len(out.Results) != len(out.Queries)-2 {
		t.Errorf("Expected %d results, got %d", len(out.Queries)-2, len(out.Results))
	}
}

func TestAggregator_Fallback(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	out, err := agg.Search(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Queries) != 1 || out.Queries[0].Query != FallbackQuery || out.Queries[0].Intent != "fallback" {
		t.Fatalf("Expected a single fallback trace entry, got %+v", out.Queries)
	}
	if len(out.Results) == 0 {
		t.Fatalf("Expected static listings")
	}
	for _, r := range out.Results {
		if r.Origin != storage.OriginFallback {
			t.Errorf("Expected fallback origin, got %s", r.Origin)
		}
	}
	if out.Queries[0].NewUnique != len(out.Results) {
		t.Errorf("Expected new_unique to match listings")
	}
}

func TestAggregator_Cancelled(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, q string, num int) ([]storage.SearchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(AggregatorConfig{Provider: provider})
	if _, err := agg.Search(ctx, testRequest()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSerper_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Q   string `json:"q"`
			Num int    `json:"num"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Num != 10 {
			t.Errorf("Expected num 10, got %d", body.Num)
		}
		_, _ = w.Write([]byte(`{
			"organic": [{"title": "RA Madrid", "link": "https://ra.co/events/es/madrid", "snippet": "Techno"}],
			"events": [{"title": "Open Air", "link": "https://example.com/oa", "date": "Sat, Jun 6", "address": "Casa de Campo"}]
		}`))
	}))
	defer ts.Close()

	s, err := NewSerper(SerperConfig{APIKey: "k", Endpoint: ts.URL, Timeout: time.Second, QPS: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := s.Search(context.Background(), "techno madrid", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[1].Snippet != "Sat, Jun 6 - Casa de Campo" {
		t.Errorf("Expected event date and address folded into snippet, got %q", results[1].Snippet)
	}

	bad, _ := NewSerper(SerperConfig{APIKey: "wrong", Endpoint: ts.URL, QPS: 100})
	if _, err := bad.Search(context.Background(), "x", 10); err == nil {
		t.Errorf("Expected error for rejected key")
	}
}

func TestNewSerper_RequiresKey(t *testing.T) {
	if _, err := NewSerper(SerperConfig{}); err == nil {
		t.Errorf("Expected error for empty key")
	}
}
