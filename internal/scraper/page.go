package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/sources"
	"github.com/FranksOps/eventradar/internal/storage"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoContent is returned when a page yields too little text to be useful.
	ErrNoContent = errors.New("scraper: no usable content")
	// ErrDisallowed is returned when robots.txt forbids the URL.
	ErrDisallowed = errors.New("scraper: disallowed by robots.txt")
)

// PageConfig configures a PageFetcher.
type PageConfig struct {
	Fetcher *Fetcher
	// Renderer handles js-heavy domains. Nil disables rendering.
	Renderer Renderer
	// Robots, when set, is consulted before every fetch.
	Robots *RobotsTxtAuditor
	// RobotsAgent is the agent name matched against robots groups (default "*").
	RobotsAgent string
	// Concurrency bounds FetchAll (0 = 4).
	Concurrency int
	Logger      *slog.Logger
}

// PageFetcher turns URLs into bounded page text, picking the render or static
// strategy by domain.
type PageFetcher struct {
	cfg    PageConfig
	logger *slog.Logger
}

// NewPageFetcher creates a PageFetcher. cfg.Fetcher is required.
func NewPageFetcher(cfg PageConfig) (*PageFetcher, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("scraper: page fetcher requires a Fetcher")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RobotsAgent == "" {
		cfg.RobotsAgent = "*"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PageFetcher{cfg: cfg, logger: logger}, nil
}

// Fetch retrieves the text of targetURL. Rendered domains fall back to the
// static strategy when rendering fails or returns nothing usable.
func (p *PageFetcher) Fetch(ctx context.Context, targetURL string) (*storage.Page, error) {
	if p.cfg.Robots != nil {
		allowed, err := p.cfg.Robots.IsAllowed(ctx, targetURL, p.cfg.RobotsAgent)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, targetURL)
		}
	}

	if p.cfg.Renderer != nil && sources.NeedsRender(targetURL) {
		page, err := p.render(ctx, targetURL)
		if err == nil {
			return page, nil
		}
		p.logger.Debug("render failed, falling back to static", "url", targetURL, "err", err)
	}

	return p.static(ctx, targetURL)
}

func (p *PageFetcher) render(ctx context.Context, targetURL string) (*storage.Page, error) {
	start := time.Now()
	raw, err := p.cfg.Renderer.Render(ctx, targetURL)
	status := "200"
	if err != nil {
		status = "error"
	}
	metrics.RecordFetch(storage.Domain(targetURL), "render", status, "", time.Since(start), len(raw))
	if err != nil {
		return nil, err
	}

	text, ok := Bound(raw)
	if !ok {
		return nil, ErrNoContent
	}
	return &storage.Page{URL: targetURL, Text: text}, nil
}

func (p *PageFetcher) static(ctx context.Context, targetURL string) (*storage.Page, error) {
	res := p.cfg.Fetcher.Fetch(ctx, targetURL)
	if !res.OK() {
		return nil, fmt.Errorf("scraper: %w", res.Err())
	}

	raw, err := ExtractText(res.Body)
	if err != nil {
		return nil, err
	}
	text, ok := Bound(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, targetURL)
	}
	return &storage.Page{URL: targetURL, Text: text}, nil
}

// FetchAll fetches at most maxPages of urls concurrently. Failures are logged
// and recorded as unsuccessful attempts. Pages and attempts keep input order.
func (p *PageFetcher) FetchAll(ctx context.Context, urls []string, maxPages int) ([]storage.Page, []storage.ScrapeAttempt) {
	if maxPages >= 0 && len(urls) > maxPages {
		urls = urls[:maxPages]
	}

	slots := make([]*storage.Page, len(urls))
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := p.Fetch(ctx, u)
			if err != nil {
				p.logger.Warn("page fetch failed", "url", u, "err", err)
				return nil
			}
			slots[i] = page
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]storage.Page, 0, len(urls))
	attempts := make([]storage.ScrapeAttempt, 0, len(urls))
	for i, u := range urls {
		attempts = append(attempts, storage.ScrapeAttempt{
			URL:     u,
			Domain:  storage.Domain(u),
			Success: slots[i] != nil,
		})
		if slots[i] != nil {
			pages = append(pages, *slots[i])
		}
	}
	return pages, attempts
}
