package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int64
}

// HTTPFetcher retrieves pages over plain net/http. It carries no pacing
// of its own; callers go through the rate governor first.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "immoweave-harvester/1.0 (+https://immoweave.fr/bot)"
	}
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = 5 << 20
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
	}
}

// Fetch retrieves one page. Transient statuses and rate-limit signals
// come back as typed errors so the orchestrator and governor can tell
// them apart.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch: get %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetch: read body %s", rawURL), resp.StatusCode)
	}

	res := &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
		FinalURL:   resp.Request.URL.String(),
	}
	if blocked, kind := DetectBlock(resp, body); blocked {
		res.Block = kind
	}

	switch {
	case res.Block == BlockCloudflare || res.Block == BlockCaptcha:
		zap.L().Warn("anti-bot defense detected",
			zap.String("url", rawURL),
			zap.String("kind", string(res.Block)),
		)
		return res, resilience.NewRateLimitError(
			eris.Errorf("fetch: %s defense at %s", res.Block, rawURL), resp.StatusCode)
	case resilience.IsRateLimitHTTPStatus(resp.StatusCode):
		return res, resilience.NewRateLimitError(
			eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return res, resilience.NewTransientError(
			eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	case resp.StatusCode >= 400:
		return res, eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL)
	}

	return res, nil
}
