package fetch

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// HeadlessFetcher renders pages in headless Chrome. Used only when the
// plain HTTP response turns out to be a JavaScript shell.
type HeadlessFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	userAgent   string
	renderWait  time.Duration
}

// HeadlessOptions configures the headless fetcher.
type HeadlessOptions struct {
	UserAgent  string
	RenderWait time.Duration
	ChromePath string
}

// NewHeadlessFetcher starts a Chrome exec allocator shared by all fetches.
func NewHeadlessFetcher(opts HeadlessOptions) *HeadlessFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "immoweave-harvester/1.0 (+https://immoweave.fr/bot)"
	}
	if opts.RenderWait == 0 {
		opts.RenderWait = 3 * time.Second
	}
	if opts.ChromePath == "" {
		opts.ChromePath = os.Getenv("CHROME_BIN")
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &HeadlessFetcher{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		userAgent:   opts.UserAgent,
		renderWait:  opts.RenderWait,
	}
}

// Fetch navigates to the URL, waits for the page to render and returns
// the resulting DOM as the body.
func (f *HeadlessFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx,
		chromedp.WithLogf(func(string, ...any) {}))
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, 60*time.Second)
	defer cancelRun()

	// Honor caller cancellation on top of the tab's own timeout.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelRun()
		case <-done:
		}
	}()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(f.renderWait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrapf(err, "fetch: headless render %s", rawURL)
	}

	zap.L().Debug("headless render complete",
		zap.String("url", rawURL),
		zap.Int("bytes", len(html)),
	)

	return &Result{
		StatusCode: http.StatusOK,
		Body:       []byte(html),
		Header:     http.Header{},
		FinalURL:   rawURL,
	}, nil
}

// Close shuts the shared allocator down.
func (f *HeadlessFetcher) Close() {
	f.cancelAlloc()
}
