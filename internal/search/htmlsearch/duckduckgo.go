// Package htmlsearch scrapes the DuckDuckGo HTML endpoint for results. It
// needs no API key and goes through the scraper's fingerprinted transport.
package htmlsearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/scraper"
	"github.com/FranksOps/leadgen/internal/search"
	"github.com/FranksOps/leadgen/pkg/httpclient"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultBaseURL = "https://html.duckduckgo.com/html/"
	providerName   = "duckduckgo"
)

// errUnrecognizedPage means a 200 page carried neither result blocks nor the
// no-results marker, usually a layout change or an interstitial.
var errUnrecognizedPage = errors.New("unrecognized results page")

// Fetcher is the subset of *scraper.Fetcher used here.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*scraper.Page, error)
}

var _ search.Provider = (*DuckDuckGo)(nil)

type DuckDuckGo struct {
	Fetcher Fetcher
	BaseURL string
	// Region is passed as kl, e.g. "us-en". Empty leaves it to the server.
	Region string
}

func New(f Fetcher) *DuckDuckGo {
	return &DuckDuckGo{Fetcher: f, BaseURL: DefaultBaseURL}
}

func (d *DuckDuckGo) Name() string { return providerName }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	q, err := search.CheckQuery(providerName, query)
	if err != nil {
		return nil, err
	}
	k := search.ClampLimit(limit)

	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	params := url.Values{"q": {q}}
	if d.Region != "" {
		params.Set("kl", d.Region)
	}

	page, err := d.Fetcher.Fetch(ctx, base+"?"+params.Encode())
	if err != nil {
		if ctx.Err() != nil {
			return nil, search.Wrap(providerName, err)
		}
		return nil, search.Wrap(providerName, retry.Transient(err))
	}
	if page.BotWall {
		return nil, search.Wrap(providerName, retry.Transient(fmt.Errorf("blocked by %s challenge (status %d)", page.BotSource, page.StatusCode)))
	}
	if page.StatusCode != http.StatusOK {
		serr := &httpclient.StatusError{StatusCode: page.StatusCode, Body: truncate(string(page.Body), 256)}
		if serr.Temporary() {
			return nil, search.Wrap(providerName, retry.Transient(serr))
		}
		return nil, search.Wrap(providerName, serr)
	}

	results, err := parseResults(page.Body)
	if err != nil {
		return nil, search.Wrap(providerName, err)
	}
	return search.Finalize(providerName, results, k), nil
}

func parseResults(body []byte) ([]search.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	blocks := doc.Find("div.result")
	if blocks.Length() == 0 {
		if doc.Find(".no-results").Length() > 0 {
			return nil, nil
		}
		return nil, errUnrecognizedPage
	}

	var out []search.Result
	blocks.Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link := resolveLink(href)
		if link == "" {
			return
		}
		out = append(out, search.Result{
			Title:   collapse(a.Text()),
			Link:    link,
			Snippet: collapse(s.Find(".result__snippet").First().Text()),
		})
	})
	return out, nil
}

// resolveLink unwraps DuckDuckGo's /l/?uddg= redirect and rejects anything
// that is not an absolute http(s) URL.
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasSuffix(u.Path, "/l/") {
		if u, err = url.Parse(target); err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
