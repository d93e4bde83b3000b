package fetch

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot defense detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Marker phrases seen on challenge and captcha interstitials. French
// agency sites sit behind OVH/Cloudflare fronts that localize their
// block pages, so both languages are checked.
var (
	challengeMarkers = []string{
		"checking your browser",
		"cf-browser-verification",
		"vérification de votre navigateur",
		"verification de votre navigateur",
		"attendez que nous vérifions",
		"accès temporairement refusé",
	}
	captchaMarkers = []string{
		"captcha",
		"recaptcha",
		"hcaptcha",
		"prouvez que vous êtes humain",
		"confirmez que vous n'êtes pas un robot",
	}
	jsShellMarkers = []string{
		"javascript",
		"activer javascript",
		"veuillez activer",
	}
)

// jsShellMaxBytes bounds the JS-shell check: a real listing page is
// bigger than an empty SPA mount point.
const jsShellMaxBytes = 2000

// DetectBlock checks an HTTP response for signs of anti-bot protection.
// Challenge and captcha walls are abuse signals for the governor; a
// JS-only shell just means the HTTP fetcher is not enough for this site.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	// Cloudflare fronts answer 403/503 with cf-* headers before the
	// origin is ever reached.
	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if containsAny(lower, challengeMarkers) ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}

	if containsAny(lower, captchaMarkers) {
		return true, BlockCaptcha
	}

	// SPA agency sites (React/Vue templates sold to agencies) serve a
	// tiny shell: a noscript plea or a meta refresh and nothing else.
	if len(body) < jsShellMaxBytes {
		if strings.Contains(lower, "<noscript") && containsAny(lower, jsShellMarkers) {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
