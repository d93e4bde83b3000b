package fetch

import (
	"net/http"
	"testing"
)

func respWith(status int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h}
}

func TestDetectBlock(t *testing.T) {
	cases := []struct {
		name    string
		resp    *http.Response
		body    string
		blocked bool
		kind    BlockType
	}{
		{
			name:    "nil response",
			resp:    nil,
			blocked: false,
		},
		{
			name:    "plain 200",
			resp:    respWith(200, nil),
			body:    "<html><body>Nos annonces immobilières</body></html>",
			blocked: false,
		},
		{
			name:    "cloudflare 403 with cf-ray",
			resp:    respWith(403, map[string]string{"cf-ray": "8a1b-CDG"}),
			body:    "Access denied",
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "cloudflare server header on 503",
			resp:    respWith(503, map[string]string{"server": "cloudflare"}),
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "browser check page on 200",
			resp:    respWith(200, nil),
			body:    "<html>Checking your browser before accessing</html>",
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "french browser check page",
			resp:    respWith(200, nil),
			body:    "<html>Vérification de votre navigateur avant d'accéder au site</html>",
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "french access denied interstitial",
			resp:    respWith(200, nil),
			body:    "<html><h1>Accès temporairement refusé</h1></html>",
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "recaptcha wall",
			resp:    respWith(200, nil),
			body:    `<div class="g-recaptcha" data-sitekey="x"></div>`,
			blocked: true,
			kind:    BlockCaptcha,
		},
		{
			name:    "french robot check",
			resp:    respWith(200, nil),
			body:    "<html><p>Confirmez que vous n'êtes pas un robot pour continuer</p></html>",
			blocked: true,
			kind:    BlockCaptcha,
		},
		{
			name:    "js shell with noscript",
			resp:    respWith(200, nil),
			body:    `<html><noscript>This site requires JavaScript</noscript><div id="app"></div></html>`,
			blocked: true,
			kind:    BlockJSShell,
		},
		{
			name:    "french noscript shell",
			resp:    respWith(200, nil),
			body:    `<html><noscript>Veuillez activer JavaScript pour voir nos annonces</noscript><div id="root"></div></html>`,
			blocked: true,
			kind:    BlockJSShell,
		},
		{
			name:    "meta refresh shell",
			resp:    respWith(200, nil),
			body:    `<html><head><meta http-equiv="refresh" content="0;url=/home"></head></html>`,
			blocked: true,
			kind:    BlockJSShell,
		},
		{
			name:    "large page mentioning javascript is fine",
			resp:    respWith(200, nil),
			body:    "<html><noscript>javascript</noscript>" + string(make([]byte, 4000)) + "</html>",
			blocked: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocked, kind := DetectBlock(tc.resp, []byte(tc.body))
			if blocked != tc.blocked {
				t.Errorf("blocked = %v, want %v", blocked, tc.blocked)
			}
			if blocked && kind != tc.kind {
				t.Errorf("kind = %s, want %s", kind, tc.kind)
			}
		})
	}
}
