// Package bypass recognises bot walls and challenge pages in HTTP responses.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP exchange detectors look at.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector reports whether resp is a block or challenge, and from whom.
type Detector func(resp *Response) (detected bool, source string)

// DefaultDetectors returns the vendor detectors plus search engine
// challenge pages.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectSearchChallenge,
	}
}

// Analyze runs resp through detectors and returns the first hit.
func Analyze(resp *Response, detectors []Detector) (bool, string) {
	if resp == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(resp); detected {
			return true, source
		}
	}
	return false, ""
}

func header(resp *Response, key string) string {
	if resp.Headers == nil {
		return ""
	}
	return resp.Headers.Get(key)
}

func bodyHas(resp *Response, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(resp.Body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(resp *Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(resp, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bodyHas(resp, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(resp *Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(resp, "Server")), "akamai") {
		return true, "Akamai"
	}
	// generic "Reference #" block page
	if bodyHas(resp, "Reference #") && bodyHas(resp, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(resp *Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(resp, "Server")), "datadome") ||
		header(resp, "X-DataDome") != "" || header(resp, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bodyHas(resp, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(resp *Response) (bool, string) {
	if resp.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(resp, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bodyHas(resp, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectSearchChallenge catches search engines that answer 200 with a
// captcha instead of results.
func detectSearchChallenge(resp *Response) (bool, string) {
	if bodyHas(resp, "anomaly-modal", "Unfortunately, bots use DuckDuckGo too") {
		return true, "DuckDuckGo"
	}
	if bodyHas(resp, "Our systems have detected unusual traffic", "/sorry/index?continue=") {
		return true, "Google"
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimit"
	}
	return false, ""
}
