package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer loads a URL in a script-executing browser and returns its visible text.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// RenderConfig configures a ChromeRenderer.
type RenderConfig struct {
	// Settle is how long to wait after navigation for scripts to paint (0 = 3s).
	Settle time.Duration
	// Timeout bounds one render (0 = 20s).
	Timeout   time.Duration
	UserAgent string
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Logger   *slog.Logger
}

// ChromeRenderer renders pages in one headless Chrome process, one tab per call.
type ChromeRenderer struct {
	cfg    RenderConfig
	logger *slog.Logger

	once        sync.Once
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
}

var _ Renderer = (*ChromeRenderer)(nil)

// NewChromeRenderer creates a renderer. Chrome is started lazily on first use.
func NewChromeRenderer(cfg RenderConfig) *ChromeRenderer {
	if cfg.Settle == 0 {
		cfg.Settle = 3 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeRenderer{cfg: cfg, logger: logger}
}

func (r *ChromeRenderer) start() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("lang", "en-US,en,es"),
		chromedp.WindowSize(1366, 900),
	)
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	r.allocCtx, r.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
}

// Render navigates to url in a fresh tab, waits for the settle delay and
// reads the body's inner text.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	r.once.Do(r.start)

	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	start := time.Now()
	var text string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("scraper: render %s: %w", url, err)
	}

	r.logger.Debug("rendered page", "url", url, "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	if r.cancelAlloc != nil {
		r.cancelAlloc()
	}
}
