package fetch

import (
	"context"

	"go.uber.org/zap"
)

// ChainFetcher tries the plain HTTP fetcher first and escalates to the
// headless renderer when the response is a JavaScript shell. Cloudflare
// and captcha defenses are never escalated; rendering past them would
// defeat the consent posture the governor enforces.
type ChainFetcher struct {
	primary  Fetcher
	headless Fetcher
}

// NewChainFetcher builds the HTTP-then-headless chain. headless may be
// nil, in which case JS shells surface as-is.
func NewChainFetcher(primary, headless Fetcher) *ChainFetcher {
	return &ChainFetcher{primary: primary, headless: headless}
}

func (c *ChainFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	res, err := c.primary.Fetch(ctx, rawURL)
	if err != nil {
		return res, err
	}
	if res.Block != BlockJSShell || c.headless == nil {
		return res, nil
	}

	zap.L().Info("escalating to headless fetch",
		zap.String("url", rawURL),
	)
	rendered, err := c.headless.Fetch(ctx, rawURL)
	if err != nil {
		// The shell body is still a valid response; let extraction
		// decide what to do with it.
		zap.L().Warn("headless fetch failed, keeping http response",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return res, nil
	}
	return rendered, nil
}
