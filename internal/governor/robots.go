package governor

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsChecker answers "may this path be crawled" per domain, caching
// parsed robots.txt files with a TTL. Unreachable or missing robots.txt
// means allow; an explicit disallow is a consent boundary and is final.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	cache     *expirable.LRU[string, *robotstxt.RobotsData]
}

// NewRobotsChecker builds a checker caching up to 512 domains for ttl.
func NewRobotsChecker(userAgent string, ttl time.Duration) *RobotsChecker {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &RobotsChecker{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		cache:     expirable.NewLRU[string, *robotstxt.RobotsData](512, nil, ttl),
	}
}

// Allowed reports whether the user agent may fetch path on domain.
func (r *RobotsChecker) Allowed(ctx context.Context, domain, path string) (bool, error) {
	data, ok := r.cache.Get(domain)
	if !ok {
		var err error
		data, err = r.fetch(ctx, domain)
		if err != nil {
			return false, err
		}
		r.cache.Add(domain, data)
	}
	if data == nil {
		return true, nil
	}
	return data.TestAgent(path, r.userAgent), nil
}

// fetch retrieves and parses robots.txt. A nil RobotsData means the
// domain publishes no usable robots.txt and everything is allowed.
func (r *RobotsChecker) fetch(ctx context.Context, domain string) (*robotstxt.RobotsData, error) {
	robotsURL := "https://" + domain + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "governor: robots request")
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Debug("robots.txt unreachable, allowing",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return nil, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		zap.L().Debug("robots.txt unparseable, allowing",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return nil, nil
	}
	return data, nil
}
