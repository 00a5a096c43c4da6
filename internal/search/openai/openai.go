// Package openai searches the web with the OpenAI Responses API web_search tool.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/FranksOps/leadgen/internal/openai"
	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/search"
)

const (
	DefaultModel = "gpt-4o-mini"
	providerName = "openai"
)

const instructions = "You are a web research assistant for lead generation. " +
	"Search the web and reply with JSON only, in the form " +
	`{"results": [{"title": "...", "link": "https://...", "snippet": "..."}]}. ` +
	`Return {"results": []} when nothing relevant is found.`

var _ search.Provider = (*Searcher)(nil)

type Searcher struct {
	client *oai.Client
	model  string
}

func New(client *oai.Client, model string) *Searcher {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Searcher{client: client, model: model}
}

func (s *Searcher) Name() string { return providerName }

func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	q, err := search.CheckQuery(providerName, query)
	if err != nil {
		return nil, err
	}
	k := search.ClampLimit(limit)

	resp, err := s.client.Responses(ctx, oai.ResponsesRequest{
		Model:        s.model,
		Instructions: instructions,
		Input:        fmt.Sprintf("Find up to %d results for: %s", k, q),
		Tools:        []oai.ResponseTool{{Type: "web_search"}},
	})
	if err != nil {
		return nil, search.Wrap(providerName, classifyErr(err))
	}

	results, err := search.DecodeResults(resp.Text())
	if err != nil {
		return nil, search.Wrap(providerName, fmt.Errorf("parse model output: %w", err))
	}
	return search.Finalize(providerName, results, k), nil
}

func classifyErr(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary() {
			return retry.Transient(err)
		}
		return err
	}
	if retry.IsTransient(err) {
		return retry.Transient(err)
	}
	return err
}
