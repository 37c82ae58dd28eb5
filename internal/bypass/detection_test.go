package bypass

import (
	"net/http"
	"testing"
)

func resp(status int, headers map[string]string, body string) *Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &Response{StatusCode: status, Headers: h, Body: []byte(body)}
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name   string
		res    *Response
		want   bool
		source string
	}{
		{"plain listing page", resp(200, map[string]string{"Server": "nginx"}, "<h1>Events</h1>"), false, ""},
		{"cloudflare header", resp(403, map[string]string{"Server": "cloudflare"}, "Access Denied"), true, "Cloudflare"},
		{"cloudflare body", resp(503, nil, "<html>... cf-turnstile ...</html>"), true, "Cloudflare"},
		{"cloudflare header on 200", resp(200, map[string]string{"Server": "cloudflare"}, "<h1>Events</h1>"), false, ""},
		{"cloudflare interstitial on 200", resp(200, nil, "<title>Just a moment...</title><script src=\"/cdn-cgi/challenge-platform/h/b\"></script>"), true, "Cloudflare"},
		{"akamai header", resp(403, map[string]string{"Server": "AkamaiGHost"}, ""), true, "Akamai"},
		{"akamai body", resp(403, nil, "Access Denied... Reference #123.456"), true, "Akamai"},
		{"akamai partial body", resp(403, nil, "Access Denied"), false, ""},
		{"datadome header", resp(403, map[string]string{"X-DataDome": "protected"}, ""), true, "DataDome"},
		{"datadome body", resp(403, nil, "geo.captcha-delivery.com"), true, "DataDome"},
		{"perimeterx body", resp(403, nil, "<div id=\"px-captcha\"></div>"), true, "PerimeterX"},
		{"perimeterx header", resp(403, map[string]string{"X-Px-Captcha": "1"}, ""), true, "PerimeterX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := Analyze(tt.res, DefaultDetectors())
			if got != tt.want || src != tt.source {
				t.Errorf("Analyze() = (%v, %q), want (%v, %q)", got, src, tt.want, tt.source)
			}
		})
	}
}

func TestAnalyze_Nil(t *testing.T) {
	if got, _ := Analyze(nil, DefaultDetectors()); got {
		t.Errorf("expected nil response to be clean")
	}
	if got, _ := Analyze(&Response{StatusCode: 403}, DefaultDetectors()); got {
		t.Errorf("expected bare 403 without markers to be clean")
	}
}
