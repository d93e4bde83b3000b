package discovery

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// NormalizeURL canonicalizes an agency website URL so every sighting of
// the same site maps to one key: https scheme, lowercase host, "www."
// stripped, no trailing slash, no query or fragment.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("discovery: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "discovery: parse url %s", raw)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return "", eris.Errorf("discovery: no usable host in %s", raw)
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/")
	return "https://" + host + path, nil
}
