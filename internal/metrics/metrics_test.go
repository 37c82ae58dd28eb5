package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(8889, nil)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordFetch("example.com", "static", "200", "", time.Second, 11)
	RecordQuery("general", nil)
	RecordQuery("platform", errors.New("boom"))
	RecordExtraction("fallback", 3)
	RecordWeatherDay("forecast")
	RecordRun("completed")
	ObserveStage("search", 250*time.Millisecond)

	resp, err := http.Get("http://localhost:8889/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		"eventradar_fetch_requests_total",
		"eventradar_fetch_duration_seconds_bucket",
		`eventradar_fetch_bytes_total{domain="example.com"}`,
		`eventradar_search_queries_total{intent="platform",status="error"}`,
		`eventradar_extracted_events_total{path="fallback"}`,
		`eventradar_weather_days_total{source="forecast"}`,
		`eventradar_runs_total{status="completed"}`,
		"eventradar_stage_duration_seconds_bucket",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}
}
