package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsTxtAuditor fetches and caches robots.txt per host and answers whether
// a URL may be fetched. Unreachable or unparsable robots files allow everything.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates an auditor that reads robots files through fetcher.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("scraper: invalid url: %w", err)
	}

	data := r.lookup(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, nil
	}
	return data.FindGroup(userAgent).Test(u.Path), nil
}

// lookup holds the lock across the fetch so concurrent pages on one host
// trigger a single robots request.
func (r *RobotsTxtAuditor) lookup(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[host]; ok {
		return data
	}

	res := r.fetcher.Fetch(ctx, host+"/robots.txt")
	var data *robotstxt.RobotsData
	switch {
	case res.Error != "":
		r.logger.Debug("robots.txt fetch failed, allowing", "host", host, "err", res.Error)
	case res.StatusCode >= 400:
	default:
		parsed, err := robotstxt.FromBytes(res.Body)
		if err != nil {
			r.logger.Debug("robots.txt unparsable, allowing", "host", host, "err", err)
		} else {
			data = parsed
		}
	}

	r.cache[host] = data
	return data
}
