// Package scraper fetches HTML pages with browser-like TLS, rotating proxies
// and User-Agents, and flags bot walls.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/leadgen/internal/bypass"
	"github.com/FranksOps/leadgen/internal/fingerprint"
	"github.com/FranksOps/leadgen/internal/metrics"
	"github.com/FranksOps/leadgen/pkg/httpclient"
	"github.com/FranksOps/leadgen/pkg/proxy"
	"github.com/FranksOps/leadgen/pkg/ratelimit"
	"github.com/FranksOps/leadgen/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// maxBody caps how much of a page is read.
const maxBody = 5 << 20

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// UseEnvProxy falls back to HTTP_PROXY and friends when the pool has
	// nothing to offer.
	UseEnvProxy bool
	// InsecureSkipVerify is for tests against self-signed servers.
	InsecureSkipVerify bool
}

// Page is one fetched response.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// BotWall is set when the response looks like a block or captcha page.
	BotWall   bool
	BotSource string
}

// Fetcher performs GET requests. One Fetcher keeps one client so cookies and
// pooled connections persist across fetches.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil, false)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	// The proxy is chosen per request and carried on the request context.
	useEnv := cfg.UseEnvProxy
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		if useEnv {
			return http.ProxyFromEnvironment(req)
		}
		return nil, nil
	}

	transport, err := fingerprint.NewTransport(fingerprint.Config{
		Profile:            cfg.Fingerprint,
		Proxy:              proxyFunc,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Limiter:      cfg.Limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch GETs targetURL. Transport failures are returned as errors; any HTTP
// response, blocked or not, comes back as a Page.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	host := req.URL.Hostname()

	activeProxy := f.config.ProxyPool.Next()
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.Report(activeProxy, err)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		metrics.RecordFetch(host, -1, false, "", time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.Report(activeProxy, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	page := &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}
	if err != nil {
		metrics.RecordFetch(host, resp.StatusCode, false, "", page.Duration)
		return nil, fmt.Errorf("read body from %s: %w", host, err)
	}

	page.BotWall, page.BotSource = bypass.Analyze(&bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, bypass.DefaultDetectors())

	metrics.RecordFetch(host, page.StatusCode, page.BotWall, page.BotSource, page.Duration)
	return page, nil
}

// Close drops idle pooled connections.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}
