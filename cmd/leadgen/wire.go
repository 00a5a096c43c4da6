package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/leadgen/internal/attempts"
	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/internal/fingerprint"
	"github.com/FranksOps/leadgen/internal/genaiclient"
	oai "github.com/FranksOps/leadgen/internal/openai"
	"github.com/FranksOps/leadgen/internal/querygen"
	qgemini "github.com/FranksOps/leadgen/internal/querygen/gemini"
	qopenai "github.com/FranksOps/leadgen/internal/querygen/openai"
	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/scraper"
	"github.com/FranksOps/leadgen/internal/search"
	sgemini "github.com/FranksOps/leadgen/internal/search/gemini"
	"github.com/FranksOps/leadgen/internal/search/htmlsearch"
	sopenai "github.com/FranksOps/leadgen/internal/search/openai"
	"github.com/FranksOps/leadgen/internal/search/websearch"
	"github.com/FranksOps/leadgen/internal/storage"
	"github.com/FranksOps/leadgen/internal/storage/jsonbackend"
	"github.com/FranksOps/leadgen/internal/storage/postgres"
	"github.com/FranksOps/leadgen/internal/storage/sqlite"
	"github.com/FranksOps/leadgen/internal/storage/supabase"
	"github.com/FranksOps/leadgen/pkg/httpclient"
	"github.com/FranksOps/leadgen/pkg/proxy"
	"github.com/FranksOps/leadgen/pkg/ratelimit"
	"github.com/FranksOps/leadgen/pkg/useragent"
)

const userAgent = "leadgen/1.0"

// htmlSearchRPS paces the scraped search endpoint when no rate is configured.
const htmlSearchRPS = 0.5

// deps holds every collaborator built from configuration.
type deps struct {
	store    storage.Backend
	gen      querygen.Generator
	search   search.Provider
	tracker  attempts.Tracker
	closers  []func() error
	limiter  *ratelimit.Limiter
	apiHTTP  *httpclient.Client
	retryPol retry.Policy
}

func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func newAPIClient(cfg *config.Config, limiter *ratelimit.Limiter) (*httpclient.Client, error) {
	return httpclient.New(httpclient.Config{
		Timeout:      cfg.RequestTimeout,
		MaxRedirects: 5,
		Limiter:      limiter,
		UserAgent:    userAgent,
	})
}

func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = cfg.MaxRetries
	p.RequestTimeout = cfg.RequestTimeout
	return p
}

// openStore connects the configured backend. Postgres is migrated up on open.
func openStore(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StoreBackend {
	case config.StoreSupabase:
		return supabase.New(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
	case config.StorePostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.StoreSQLite:
		return sqlite.New(sqlite.DSN(cfg.SQLitePath))
	case config.StoreJSON:
		return jsonbackend.New(cfg.JSONStoreDir)
	default:
		return nil, &config.Error{Problems: []string{fmt.Sprintf("unknown store backend %q", cfg.StoreBackend)}}
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, hc *httpclient.Client) (querygen.Generator, error) {
	switch cfg.ModelProvider {
	case config.ModelOpenAI:
		c, err := qopenai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, hc)
		if err != nil {
			return nil, err
		}
		return qopenai.New(c, cfg.OpenAIModel), nil
	case config.ModelGemini:
		c, err := genaiclient.New(ctx, genaiclient.Config{APIKey: cfg.GeminiAPIKey, BaseURL: cfg.GeminiBaseURL})
		if err != nil {
			return nil, err
		}
		return qgemini.New(c, cfg.GeminiModel), nil
	default:
		return nil, &config.Error{Problems: []string{fmt.Sprintf("unknown model provider %q", cfg.ModelProvider)}}
	}
}

// newSearch builds the configured provider. The returned closer releases
// scraper connections for the html provider and is nil otherwise.
func newSearch(ctx context.Context, cfg *config.Config, hc *httpclient.Client, logger *slog.Logger) (search.Provider, func() error, error) {
	switch cfg.SearchProvider {
	case config.SearchSerper:
		p, err := websearch.New(websearch.SerperKind, cfg.SerperAPIKey, hc)
		if err == nil && cfg.SearchBaseURL != "" {
			p.(*websearch.Serper).BaseURL = cfg.SearchBaseURL
		}
		return p, nil, err
	case config.SearchBrave:
		p, err := websearch.New(websearch.BraveKind, cfg.BraveAPIKey, hc)
		if err == nil && cfg.SearchBaseURL != "" {
			p.(*websearch.Brave).BaseURL = cfg.SearchBaseURL
		}
		return p, nil, err
	case config.SearchOpenAI:
		c, err := oai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, hc)
		if err != nil {
			return nil, nil, err
		}
		return sopenai.New(c, cfg.OpenAIModel), nil, nil
	case config.SearchGemini:
		c, err := genaiclient.New(ctx, genaiclient.Config{APIKey: cfg.GeminiAPIKey, BaseURL: cfg.GeminiBaseURL})
		if err != nil {
			return nil, nil, err
		}
		return sgemini.New(c, cfg.GeminiModel), nil, nil
	case config.SearchDuckDuckGo:
		f, err := newFetcher(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		d := htmlsearch.New(f)
		if cfg.SearchBaseURL != "" {
			d.BaseURL = cfg.SearchBaseURL
		}
		d.Region = cfg.SearchRegion
		return d, func() error { f.Close(); return nil }, nil
	default:
		return nil, nil, &config.Error{Problems: []string{fmt.Sprintf("unknown search provider %q", cfg.SearchProvider)}}
	}
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (*scraper.Fetcher, error) {
	profile, err := fingerprint.ParseProfile(cfg.TLSFingerprint)
	if err != nil {
		return nil, &config.Error{Problems: []string{err.Error()}}
	}

	var pool *proxy.Pool
	if cfg.ProxyURLs != "" || cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.AddList(cfg.ProxyURLs); err != nil {
			return nil, &config.Error{Problems: []string{err.Error()}}
		}
		if cfg.ProxyFile != "" {
			if err := pool.LoadFile(cfg.ProxyFile); err != nil {
				return nil, &config.Error{Problems: []string{err.Error()}}
			}
		}
		logger.Info("proxy pool loaded", "proxies", pool.Len())
	}

	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = htmlSearchRPS
	}

	return scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.RequestTimeout,
		UseCookieJar: true,
		ProxyPool:    pool,
		UAPool:       useragent.NewPool(nil, true),
		Fingerprint:  profile,
		Limiter:      ratelimit.NewLimiter(rps, cfg.RateJitter),
		UseEnvProxy:  true,
	})
}

// newTracker returns nil when the attempt cap is off. Validate guarantees a
// Redis address otherwise.
func newTracker(ctx context.Context, cfg *config.Config) (attempts.Tracker, func() error, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, nil, nil
	}
	client, err := attempts.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return attempts.NewRedis(client, 0), client.Close, nil
}

// buildDeps constructs everything a run needs. On error anything already
// opened is closed.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (d *deps, err error) {
	d = &deps{
		limiter:  ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.RateJitter),
		retryPol: retryPolicy(cfg),
	}
	defer func() {
		if err != nil {
			_ = d.Close()
			d = nil
		}
	}()

	if d.apiHTTP, err = newAPIClient(cfg, d.limiter); err != nil {
		return d, err
	}

	if d.store, err = openStore(ctx, cfg); err != nil {
		return d, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	d.closers = append(d.closers, d.store.Close)

	gen, err := newGenerator(ctx, cfg, d.apiHTTP)
	if err != nil {
		return d, fmt.Errorf("query generator: %w", err)
	}
	d.gen = querygen.WithRetry(gen, d.retryPol)

	provider, closeSearch, err := newSearch(ctx, cfg, d.apiHTTP, logger)
	if err != nil {
		return d, fmt.Errorf("search provider: %w", err)
	}
	if closeSearch != nil {
		d.closers = append(d.closers, closeSearch)
	}
	d.search = search.WithRetry(provider, d.retryPol)

	tracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return d, fmt.Errorf("attempt tracker: %w", err)
	}
	if closeTracker != nil {
		d.closers = append(d.closers, closeTracker)
	}
	d.tracker = tracker

	return d, nil
}
