package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_fetch_requests_total",
			Help: "Total number of page fetches executed",
		},
		[]string{"domain", "strategy", "status", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventradar_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"strategy"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_fetch_bytes_total",
			Help: "Total bytes downloaded across all static fetches",
		},
		[]string{"domain"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_search_queries_total",
			Help: "Search queries issued, by intent and outcome",
		},
		[]string{"intent", "status"},
	)

	ExtractedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_extracted_events_total",
			Help: "Event drafts produced, by extraction path",
		},
		[]string{"path"},
	)

	WeatherDaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_weather_days_total",
			Help: "Weather days produced, by source",
		},
		[]string{"source"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventradar_runs_total",
			Help: "Runs reaching a terminal status",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventradar_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.05, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
)

// RecordFetch updates the fetch metrics. status is the HTTP status code or "error".
func RecordFetch(domain, strategy, status, detectionSrc string, d time.Duration, bytes int) {
	FetchRequestsTotal.WithLabelValues(domain, strategy, status, detectionSrc).Inc()
	FetchDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if bytes > 0 {
		FetchBytesTotal.WithLabelValues(domain).Add(float64(bytes))
	}
}

// RecordQuery counts one issued search query.
func RecordQuery(intent string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SearchQueriesTotal.WithLabelValues(intent, status).Inc()
}

// RecordExtraction counts drafts produced by the ai or fallback path.
func RecordExtraction(path string, n int) {
	ExtractedEventsTotal.WithLabelValues(path).Add(float64(n))
}

// RecordWeatherDay counts one produced weather day.
func RecordWeatherDay(source string) {
	WeatherDaysTotal.WithLabelValues(source).Inc()
}

// RecordRun counts a run reaching a terminal status.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
