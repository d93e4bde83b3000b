// Package fetch retrieves pages from agency websites. It knows nothing
// about pacing or consent; the rate governor gates every call before it
// reaches a Fetcher.
package fetch

import (
	"context"
	"net/http"
)

// Result is one fetched page.
type Result struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	FinalURL   string

	// Block is set when the page looks like an anti-bot response rather
	// than content. A BlockJSShell result is recoverable through the
	// headless fetcher; the others are abuse signals.
	Block BlockType
}

// Blocked reports whether the result is a defensive page, not content.
func (r *Result) Blocked() bool { return r.Block != BlockNone }

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}
