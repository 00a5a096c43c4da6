package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FranksOps/leadgen/internal/search"
	"github.com/FranksOps/leadgen/pkg/httpclient"
)

const braveURL = "https://api.search.brave.com/res/v1/web/search"

var _ search.Provider = (*Brave)(nil)

// Brave queries the Brave Search web endpoint.
type Brave struct {
	APIKey  string
	Client  *httpclient.Client
	BaseURL string
}

func (b *Brave) Name() string { return string(BraveKind) }

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	q, err := search.CheckQuery(b.Name(), query)
	if err != nil {
		return nil, err
	}
	// Brave caps count at 20.
	k := min(search.ClampLimit(limit), 20)

	endpoint := b.BaseURL
	if endpoint == "" {
		endpoint = braveURL
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(k))

	h := http.Header{}
	h.Set("X-Subscription-Token", b.APIKey)

	var raw struct {
		Web struct {
			Results []json.RawMessage `json:"results"`
		} `json:"web"`
	}
	if err := b.Client.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), h, nil, &raw); err != nil {
		return nil, search.Wrap(b.Name(), classifyErr(err))
	}

	items := decodeEach[struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
	}](raw.Web.Results)

	results := make([]search.Result, 0, len(items))
	for _, r := range items {
		results = append(results, search.Result{Title: r.Title, Link: r.URL, Snippet: r.Description})
	}
	return search.Finalize(b.Name(), results, k), nil
}
