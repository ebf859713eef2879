package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"wombat/internal/config"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// BrowserFetcher drives a headless Chrome through chromedp and captures the JSON body of the
// first background response matching a FetchRequest.
type BrowserFetcher struct {
	logger   *slog.Logger
	headless bool
	timeout  time.Duration
}

func NewBrowserFetcher(logger *slog.Logger, cfg config.SearchConfig) *BrowserFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &BrowserFetcher{logger: logger, headless: cfg.Headless, timeout: timeout}
}

func (b *BrowserFetcher) newContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("log-level", "3"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 800),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	return browserCtx, func() {
		cancelCtx()
		cancelAlloc()
	}
}

type captured struct {
	body []byte
	err  error
}

// Fetch loads req.URL (after req.WarmupURL) and returns the first matching response body.
func (b *BrowserFetcher) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	browserCtx, cancel := b.newContext(ctx)
	defer cancel()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, b.timeout)
	defer cancelTimeout()

	done := make(chan captured, 1)
	var matched network.RequestID
	var status int64

	// Listener callbacks run on the event loop and must not block on CDP calls.
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if matched == "" && req.Match(e.Response.URL) {
				matched = e.RequestID
				status = e.Response.Status
			}
		case *network.EventLoadingFinished:
			if matched == "" || e.RequestID != matched {
				return
			}
			id, code := e.RequestID, status
			go func() {
				if code != http.StatusOK {
					done <- captured{err: statusError(code)}
					return
				}
				c := chromedp.FromContext(browserCtx)
				body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(browserCtx, c.Target))
				done <- captured{body: body, err: err}
			}()
		}
	})

	actions := []chromedp.Action{network.Enable()}
	if len(req.Block) > 0 {
		actions = append(actions, network.SetBlockedURLS(req.Block))
	}
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if req.WarmupURL != "" {
		if err := chromedp.Run(browserCtx, chromedp.Navigate(req.WarmupURL)); err != nil {
			b.logger.Debug("BrowserFetcher: warmup navigation failed", "url", req.WarmupURL, "error", err)
		}
	}

	b.logger.Debug("BrowserFetcher: navigating", "url", req.URL)
	if err := chromedp.Run(browserCtx, chromedp.Navigate(req.URL)); err != nil {
		b.logger.Debug("BrowserFetcher: navigation returned error", "error", err)
	}

	select {
	case c := <-done:
		if c.err != nil {
			return nil, c.err
		}
		return c.body, nil
	case <-browserCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}
}

func statusError(code int64) error {
	if code == http.StatusForbidden || code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrBlocked, code)
	}
	return fmt.Errorf("award search API returned status %d", code)
}
