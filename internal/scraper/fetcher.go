package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/eventradar/internal/bypass"
	"github.com/FranksOps/eventradar/internal/fingerprint"
	"github.com/FranksOps/eventradar/internal/metrics"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/FranksOps/eventradar/pkg/httpclient"
	"github.com/FranksOps/eventradar/pkg/proxy"
	"github.com/FranksOps/eventradar/pkg/ratelimit"
	"github.com/FranksOps/eventradar/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// DefaultAcceptLanguage matches what a Spanish/English speaking browser sends.
const DefaultAcceptLanguage = "en-US,en;q=0.9,es;q=0.8"

// FetchConfig configures the static HTTP fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	// Limiter spaces requests per host when set.
	Limiter        *ratelimit.Limiter
	AcceptLanguage string
	// MaxBodyBytes caps how much of a response is read (0 = 5 MiB).
	MaxBodyBytes int64
}

// FetchResult is one raw HTTP fetch. Transport failures are recorded in Error
// rather than returned, so callers can always log the attempt.
type FetchResult struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	DetectedBot  bool
	DetectionSrc string
	Error        string
}

// OK reports whether the fetch produced a usable 2xx, unchallenged body.
func (r *FetchResult) OK() bool {
	return r.Error == "" && !r.DetectedBot && r.StatusCode >= 200 && r.StatusCode < 300
}

// Err summarises why a result is not OK.
func (r *FetchResult) Err() error {
	switch {
	case r.Error != "":
		return fmt.Errorf("fetch %s: %s", r.URL, r.Error)
	case r.DetectedBot:
		return fmt.Errorf("fetch %s: blocked by %s", r.URL, r.DetectionSrc)
	case r.StatusCode < 200 || r.StatusCode >= 300:
		return fmt.Errorf("fetch %s: status %d", r.URL, r.StatusCode)
	}
	return nil
}

// Fetcher performs single URL fetches with a browser TLS fingerprint, rotating
// User-Agents and optional proxies.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher. A single client is held across
// requests so cookie jars and connection pools persist.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}

	// The proxy is chosen per request and carried on its context, so one
	// transport serves every proxy.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("scraper: transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper: client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// UserAgent returns the next User-Agent the fetcher would send.
func (f *Fetcher) UserAgent() string {
	return f.config.UAPool.GetSequential()
}

// Fetch GETs targetURL and runs bot-protection detection on the response.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) *FetchResult {
	start := time.Now()
	result := &FetchResult{URL: targetURL}
	domain := storage.Domain(targetURL)

	defer func() {
		status := strconv.Itoa(result.StatusCode)
		if result.Error != "" {
			status = "error"
		}
		metrics.RecordFetch(domain, "static", status, result.DetectionSrc, result.Duration, len(result.Body))
	}()

	if err := f.config.Limiter.Wait(ctx, domain); err != nil {
		result.Error = fmt.Sprintf("rate limiter: %v", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		return result
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	req.Header.Set("User-Agent", f.config.UAPool.GetSequential())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		result.Error = fmt.Sprintf("read body: %v", err)
	}

	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	result.Duration = time.Since(start)
	result.DetectedBot, result.DetectionSrc = bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, bypass.DefaultDetectors())

	return result
}
