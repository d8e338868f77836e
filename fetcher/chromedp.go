// Package fetcher provides the raw-fetch collaborator: it renders a listing
// detail page in headless Chrome and hands back the full HTML, leaving all
// parsing to the extraction layer.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"realestate-scraper/config"
	"realestate-scraper/utils"
)

// ChromeFetcher fetches pages through a shared headless-Chrome allocator.
// Listing sites render most of their data client-side, so a plain HTTP GET
// would miss the embedded state blobs entirely.
type ChromeFetcher struct {
	cfg      *config.Config
	logger   *utils.Logger
	retry    *utils.RetryConfig
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewChromeFetcher boots the browser allocator. Close must be called when
// the run is over.
func NewChromeFetcher(cfg *config.Config, logger *utils.Logger) *ChromeFetcher {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	if chromeBin != "" {
		logger.Info("[fetch] Using browser binary: %s", chromeBin)
	} else {
		logger.Warn("[fetch] No Chrome binary found, relying on chromedp defaults")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &ChromeFetcher{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		allocCtx: silentCtx,
		cancel: func() {
			cancelSilent()
			cancelAlloc()
		},
	}
}

// Fetch renders the page in a fresh tab and returns the document HTML after
// the client-side scripts have had time to hydrate it.
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var html string

	err := f.retry.Do(ctx, "fetch-detail", func() error {
		tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
		defer cancelTab()

		timeout := time.Duration(f.cfg.FetchTimeoutMs) * time.Millisecond
		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
		defer cancelTimeout()

		err := chromedp.Run(tabCtx,
			chromedp.Navigate(url),
			chromedp.Sleep(4*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return fmt.Errorf("chromedp render: %w", err)
		}
		if html == "" {
			return fmt.Errorf("empty document for %s", url)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	f.logger.Debug("[fetch] %s — %d bytes", url, len(html))
	return html, nil
}

// Close tears down the browser allocator.
func (f *ChromeFetcher) Close() {
	f.cancel()
}

// findChromeBinary locates the Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
