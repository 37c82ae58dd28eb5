// Package bypass recognises bot-protection challenge and block pages so that
// they are never mistaken for listing content.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP response the detectors inspect.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector examines a response and reports the protection vendor that
// blocked or challenged the request, if any.
type Detector func(res *Response) (detected bool, source string)

// signature describes one vendor's block page. A response matches when its
// status is in statuses (any status if empty) and a header or body marker hits.
type signature struct {
	vendor      string
	statuses    []int
	serverHints []string
	headers     []string
	bodyMarkers [][]byte
	// bodyAll requires every body marker instead of any.
	bodyAll bool
}

var signatures = []signature{
	{
		vendor:      "Cloudflare",
		statuses:    []int{http.StatusForbidden, http.StatusServiceUnavailable},
		serverHints: []string{"cloudflare"},
		bodyMarkers: [][]byte{
			[]byte("cf-browser-verification"),
			[]byte("cloudflare-nginx"),
			[]byte("cf-turnstile"),
			[]byte("Attention Required! | Cloudflare"),
		},
	},
	{
		// Interstitials sometimes arrive with 200 and still carry no listing text.
		vendor:      "Cloudflare",
		bodyMarkers: [][]byte{[]byte("<title>Just a moment...</title>"), []byte("/cdn-cgi/challenge-platform/")},
		bodyAll:     true,
	},
	{
		vendor:      "Akamai",
		statuses:    []int{http.StatusForbidden},
		serverHints: []string{"akamai"},
		bodyMarkers: [][]byte{[]byte("Reference #"), []byte("Access Denied")},
		bodyAll:     true,
	},
	{
		vendor:      "DataDome",
		statuses:    []int{http.StatusForbidden},
		serverHints: []string{"datadome"},
		headers:     []string{"X-DataDome", "X-DataDome-Response"},
		bodyMarkers: [][]byte{[]byte("geo.captcha-delivery.com"), []byte("datadome")},
	},
	{
		vendor:      "PerimeterX",
		statuses:    []int{http.StatusForbidden},
		headers:     []string{"X-Px-Captcha"},
		bodyMarkers: [][]byte{[]byte("client.perimeterx.net"), []byte("px-captcha"), []byte("_pxBlock")},
	},
}

func (s signature) match(res *Response) bool {
	if len(s.statuses) > 0 && !containsInt(s.statuses, res.StatusCode) {
		return false
	}

	server := strings.ToLower(res.Headers.Get("Server"))
	for _, hint := range s.serverHints {
		if strings.Contains(server, hint) {
			return true
		}
	}
	for _, h := range s.headers {
		if res.Headers.Get(h) != "" {
			return true
		}
	}

	if len(s.bodyMarkers) == 0 {
		return false
	}
	hits := 0
	for _, m := range s.bodyMarkers {
		if bytes.Contains(res.Body, m) {
			hits++
		}
	}
	if s.bodyAll {
		return hits == len(s.bodyMarkers)
	}
	return hits > 0
}

func (s signature) detector() Detector {
	return func(res *Response) (bool, string) {
		if s.match(res) {
			return true, s.vendor
		}
		return false, ""
	}
}

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	out := make([]Detector, 0, len(signatures))
	for _, s := range signatures {
		out = append(out, s.detector())
	}
	return out
}

// Analyze runs res through detectors and returns the first vendor that matched.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	if res.Headers == nil {
		res.Headers = http.Header{}
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
