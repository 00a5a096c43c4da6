package websearch

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/FranksOps/leadgen/internal/search"
	"github.com/FranksOps/leadgen/pkg/httpclient"
)

const serperURL = "https://google.serper.dev/search"

var _ search.Provider = (*Serper)(nil)

// Serper queries Google through serper.dev.
type Serper struct {
	APIKey  string
	Client  *httpclient.Client
	BaseURL string
}

func (s *Serper) Name() string { return string(SerperKind) }

func (s *Serper) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	q, err := search.CheckQuery(s.Name(), query)
	if err != nil {
		return nil, err
	}
	k := search.ClampLimit(limit)

	endpoint := s.BaseURL
	if endpoint == "" {
		endpoint = serperURL
	}
	h := http.Header{}
	h.Set("X-API-KEY", s.APIKey)

	var raw struct {
		Organic []json.RawMessage `json:"organic"`
	}
	payload := map[string]any{"q": q, "num": k}
	if err := s.Client.DoJSON(ctx, http.MethodPost, endpoint, h, payload, &raw); err != nil {
		return nil, search.Wrap(s.Name(), classifyErr(err))
	}

	items := decodeEach[struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	}](raw.Organic)

	results := make([]search.Result, 0, len(items))
	for _, it := range items {
		results = append(results, search.Result{Title: it.Title, Link: it.Link, Snippet: it.Snippet})
	}
	return search.Finalize(s.Name(), results, k), nil
}
