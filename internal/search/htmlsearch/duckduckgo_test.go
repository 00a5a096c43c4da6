package htmlsearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/FranksOps/leadgen/internal/fingerprint"
	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/scraper"
	"github.com/FranksOps/leadgen/internal/search"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://ads.example/click">Sponsored</a>
</div>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Facme.example%2Fabout&amp;rut=abc">Acme   SaaS</a>
  </h2>
  <a class="result__snippet" href="#">Acme builds
    billing software in Columbus, Ohio.</a>
</div>
<div class="result results_links web-result">
  <a class="result__a" href="https://globex.example/">Globex</a>
</div>
<div class="result results_links web-result">
  <a class="result__a" href="javascript:void(0)">Broken</a>
</div>
</body></html>`

func newSearcher(t *testing.T, handler http.HandlerFunc) *DuckDuckGo {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	f, err := scraper.NewFetcher(scraper.FetchConfig{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(f.Close)

	d := New(f)
	d.BaseURL = ts.URL + "/html/"
	return d
}

func TestSearch(t *testing.T) {
	d := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "SaaS companies Ohio" {
			t.Errorf("Expected q=SaaS companies Ohio, got %q", got)
		}
		_, _ = w.Write([]byte(resultsPage))
	})

	results, err := d.Search(context.Background(), "SaaS companies Ohio", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d: %+v", len(results), results)
	}

	first := results[0]
	if first.Title != "Acme SaaS" {
		t.Errorf("Expected title 'Acme SaaS', got %q", first.Title)
	}
	if first.Link != "https://acme.example/about" {
		t.Errorf("Expected unwrapped link, got %q", first.Link)
	}
	if first.Snippet != "Acme builds billing software in Columbus, Ohio." {
		t.Errorf("unexpected snippet %q", first.Snippet)
	}
	if first.Position != 1 || first.Source != "duckduckgo" {
		t.Errorf("unexpected position/source %+v", first)
	}
	if results[1].Snippet != "" {
		t.Errorf("Expected empty snippet, got %q", results[1].Snippet)
	}
}

func TestSearch_Limit(t *testing.T) {
	d := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(resultsPage))
	})
	results, err := d.Search(context.Background(), "acme", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(results))
	}
}

func TestSearch_NoResults(t *testing.T) {
	d := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div class="no-results">No results.</div></html>`))
	})
	results, err := d.Search(context.Background(), "zzzz", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}
}

func TestSearch_UnrecognizedPage(t *testing.T) {
	d := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Welcome to our new look!</p></body></html>`))
	})
	results, err := d.Search(context.Background(), "acme", 10)
	var se *search.Error
	if !errors.As(err, &se) {
		t.Fatalf("Expected *search.Error, got %v", err)
	}
	if !errors.Is(err, errUnrecognizedPage) {
		t.Errorf("Expected unrecognized page error, got %v", err)
	}
	if retry.IsTransient(err) {
		t.Errorf("Expected unrecognized page to be permanent, got %v", err)
	}
	if results != nil {
		t.Errorf("Expected nil results, got %+v", results)
	}
}

func TestSearch_BotWall(t *testing.T) {
	d := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="anomaly-modal">Unfortunately, bots use DuckDuckGo too.</div>`))
	})
	_, err := d.Search(context.Background(), "acme", 10)
	var se *search.Error
	if !errors.As(err, &se) {
		t.Fatalf("Expected *search.Error, got %v", err)
	}
	if !retry.IsTransient(err) {
		t.Errorf("Expected bot wall to be transient, got %v", err)
	}
}

func TestSearch_Status(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		d := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := d.Search(context.Background(), "acme", 10)
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if retry.IsTransient(err) != tt.transient {
			t.Errorf("status %d: expected transient=%v, got %v", tt.status, tt.transient, err)
		}
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	d := New(nil)
	if _, err := d.Search(context.Background(), "  ", 10); !errors.Is(err, search.ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://acme.example/", "https://acme.example/"},
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fx.example%2Fa%3Fb%3D1", "https://x.example/a?b=1"},
		{"/relative", ""},
		{"mailto:a@b.example", ""},
		{"javascript:void(0)", ""},
	}
	for _, tt := range tests {
		if got := resolveLink(tt.in); got != tt.want {
			t.Errorf("resolveLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
