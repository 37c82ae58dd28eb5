package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/eventradar/internal/analyzer"
	"github.com/FranksOps/eventradar/internal/city"
	"github.com/FranksOps/eventradar/internal/config"
	"github.com/FranksOps/eventradar/internal/extract"
	"github.com/FranksOps/eventradar/internal/fingerprint"
	"github.com/FranksOps/eventradar/internal/pipeline"
	"github.com/FranksOps/eventradar/internal/progress"
	"github.com/FranksOps/eventradar/internal/scraper"
	"github.com/FranksOps/eventradar/internal/serp"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/FranksOps/eventradar/internal/storage/postgres"
	"github.com/FranksOps/eventradar/internal/storage/sqlite"
	"github.com/FranksOps/eventradar/internal/weather"
	"github.com/FranksOps/eventradar/pkg/proxy"
	"github.com/FranksOps/eventradar/pkg/ratelimit"
	"github.com/FranksOps/eventradar/pkg/useragent"
)

func openBackend(ctx context.Context, c config.StorageConfig) (storage.Backend, error) {
	switch c.Driver {
	case "postgres":
		return postgres.New(ctx, c.DSN)
	default:
		return sqlite.New(c.DSN)
	}
}

// app holds the assembled pipeline and everything that needs closing.
type app struct {
	backend storage.Backend
	cities  *city.Static
	service *pipeline.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires the full stack from cfg. extra, when set, also receives
// progress notifications.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra pipeline.ProgressFunc) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.backend, err = openBackend(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.backend.Close() })

	if a.cities, err = city.LoadFile(cfg.Cities.File); err != nil {
		return nil, err
	}

	search, err := newSearch(cfg.Search, logger)
	if err != nil {
		return nil, err
	}

	pages, closePages, err := newPages(cfg.Fetch, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closePages)

	extractor, err := newExtractor(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	wx, err := weather.NewEnricher(weather.Config{
		ForecastURL:  cfg.Weather.ForecastURL,
		ArchiveURL:   cfg.Weather.ArchiveURL,
		HorizonDays:  cfg.Weather.HorizonDays,
		HistoryYears: cfg.Weather.HistoryYears,
		Timeout:      cfg.Weather.Timeout,
		QPS:          5,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	sinks := []pipeline.ProgressFunc{progress.Log(logger), extra}
	if cfg.NATS.URL != "" {
		sink, closeNATS, err := progress.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeNATS)
		sinks = append(sinks, sink.Send)
	}

	a.service, err = pipeline.NewService(pipeline.Config{
		Backend:   a.backend,
		Cities:    a.cities,
		Search:    search,
		Pages:     pages,
		Extractor: extractor,
		Weather:   wx,
		Progress:  progress.Multi(sinks...),
		MaxPages:  cfg.Fetch.MaxPages,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newSearch(c config.SearchConfig, logger *slog.Logger) (*serp.Aggregator, error) {
	var provider serp.Provider
	if c.APIKey != "" {
		s, err := serp.NewSerper(serp.SerperConfig{
			APIKey:   c.APIKey,
			Endpoint: c.Endpoint,
			Timeout:  c.Timeout,
			QPS:      c.QPS,
		})
		if err != nil {
			return nil, err
		}
		provider = s
	} else {
		logger.Warn("no search api key, using static listing fallback")
	}
	return serp.NewAggregator(serp.AggregatorConfig{
		Provider:    provider,
		Concurrency: c.Concurrency,
		NumResults:  c.NumResults,
		Timeout:     c.Timeout,
		Logger:      logger,
	}), nil
}

func newPages(c config.FetchConfig, logger *slog.Logger) (*scraper.PageFetcher, func(), error) {
	profile, err := fingerprint.ParseProfile(c.Fingerprint)
	if err != nil {
		return nil, nil, err
	}

	var proxies *proxy.Pool
	if c.ProxiesFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(c.ProxiesFile); err != nil {
			return nil, nil, err
		}
		logger.Info("proxies loaded", "count", proxies.Len())
	}

	uas := useragent.NewPool(c.UserAgents)
	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      c.Timeout,
		UseCookieJar: true,
		ProxyPool:    proxies,
		UAPool:       uas,
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(c.RPS, c.Jitter),
	})
	if err != nil {
		return nil, nil, err
	}

	pc := scraper.PageConfig{
		Fetcher:     fetcher,
		Concurrency: c.Concurrency,
		Logger:      logger,
	}
	if c.Robots {
		pc.Robots = scraper.NewRobotsTxtAuditor(fetcher, logger)
	}
	closeFn := func() {}
	if c.Render {
		r := scraper.NewChromeRenderer(scraper.RenderConfig{
			Settle:    c.RenderSettle,
			UserAgent: uas.GetRandom(),
			ExecPath:  c.ChromePath,
			Logger:    logger,
		})
		pc.Renderer = r
		closeFn = r.Close
	}

	pages, err := scraper.NewPageFetcher(pc)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return pages, closeFn, nil
}

func newExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*extract.Extractor, error) {
	var model extract.Model
	key := cfg.AIKey()
	switch {
	case cfg.AI.Provider == "none":
	case key == "":
		logger.Warn("no ai api key, using heuristic extraction", "provider", cfg.AI.Provider)
	case cfg.AI.Provider == "gemini":
		g, err := extract.NewGemini(ctx, extract.GeminiConfig{
			APIKey:    key,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
			BaseURL:   cfg.AI.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		model = g
	default:
		m, err := extract.NewAnthropic(extract.AnthropicConfig{
			APIKey:    key,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
			BaseURL:   cfg.AI.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		model = m
	}

	brand := analyzer.NewBrandMatcher(analyzer.ParseKeywords(cfg.Brand.Keywords))
	if brand.Empty() {
		logger.Debug("no brand keywords configured")
	}
	return extract.New(extract.Config{
		Model:   model,
		Brand:   brand,
		Timeout: cfg.AI.Timeout,
		Logger:  logger,
	}), nil
}

// shutdownTimeout bounds how long serve waits for in-flight runs.
const shutdownTimeout = 30 * time.Second

func describe(run *storage.Run) string {
	return fmt.Sprintf("%s  %-10s %-14s %s..%s  events=%d",
		run.ID, run.Status, run.CityName, storage.DayKey(run.DateFrom), storage.DayKey(run.DateTo), run.EventCount)
}
