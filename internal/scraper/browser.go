package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"power-outage-monitor/config"
)

// extractScript returns the schedule block when the page renders one and
// falls back to the whole body text otherwise.
const extractScript = `(() => {
	for (const el of document.querySelectorAll("div.power-off__text")) {
		const text = (el.innerText || "").trim();
		if (text.length > 50) {
			return text;
		}
	}
	return document.body ? document.body.innerText : "";
})()`

// BrowserFetcher renders the schedule page in Chromium. The page fills the
// schedule in with JavaScript, so a plain HTTP GET sees no groups.
type BrowserFetcher struct {
	cfg config.ScraperConfig
	log zerolog.Logger
}

// NewBrowserFetcher creates a fetcher for cfg.URL.
func NewBrowserFetcher(cfg config.ScraperConfig, log zerolog.Logger) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg, log: log}
}

func (f *BrowserFetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", f.cfg.Headless == nil || *f.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	if f.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ChromePath))
	}
	return opts
}

// FetchText loads the page, waits for scripts to settle and returns its text.
func (f *BrowserFetcher) FetchText(parent context.Context) (string, error) {
	if f.cfg.URL == "" {
		return "", fmt.Errorf("scraper: URL is required")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, f.allocatorOptions()...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if f.cfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer timeoutCancel()
	}

	var tasks chromedp.Tasks
	if len(f.cfg.Headers) > 0 {
		headers := network.Headers{}
		for k, v := range f.cfg.Headers {
			headers[k] = v
		}
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}

	var text string
	tasks = append(tasks,
		chromedp.Navigate(f.cfg.URL),
		chromedp.Sleep(f.cfg.Settle),
		chromedp.Evaluate(extractScript, &text),
	)

	started := time.Now()
	f.log.Debug().Str("url", f.cfg.URL).Msg("loading schedule page")
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	f.log.Debug().Dur("took", time.Since(started)).Int("chars", len(text)).Msg("schedule page loaded")
	return text, nil
}
