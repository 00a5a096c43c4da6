// Package gemini searches the web through Gemini's Google Search grounding.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/leadgen/internal/genaiclient"
	"github.com/FranksOps/leadgen/internal/search"
	"google.golang.org/genai"
)

const providerName = "gemini"

var _ search.Provider = (*Searcher)(nil)

// Searcher asks a grounded model for results as JSON. When the model answers
// in prose the grounding sources are used instead.
type Searcher struct {
	client *genai.Client
	model  string
}

func New(client *genai.Client, model string) *Searcher {
	if strings.TrimSpace(model) == "" {
		model = genaiclient.DefaultModel
	}
	return &Searcher{client: client, model: strings.TrimSpace(model)}
}

func (s *Searcher) Name() string { return providerName }

func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	q, err := search.CheckQuery(providerName, query)
	if err != nil {
		return nil, err
	}
	k := search.ClampLimit(limit)

	// Grounding tools cannot be combined with a response schema, so the JSON
	// shape is requested in the prompt.
	resp, err := s.client.Models.GenerateContent(
		ctx,
		s.model,
		genai.Text(buildPrompt(q, k)),
		&genai.GenerateContentConfig{
			Tools:          []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			CandidateCount: 1,
		},
	)
	if err != nil {
		return nil, search.Wrap(providerName, genaiclient.ClassifyErr(err))
	}

	results, decodeErr := search.DecodeResults(resp.Text())
	if decodeErr != nil {
		for _, src := range genaiclient.GroundingSources(resp) {
			results = append(results, search.Result{Title: src.Title, Link: src.URI})
		}
		if len(results) == 0 {
			return nil, search.Wrap(providerName, fmt.Errorf("parse model output: %w", decodeErr))
		}
	}
	return search.Finalize(providerName, results, k), nil
}

func buildPrompt(query string, limit int) string {
	return fmt.Sprintf(`Use web search to find up to %d results for the query below.

Return ONLY a JSON object of the form:
{"results": [{"title": "...", "link": "https://...", "snippet": "..."}]}

Rules:
- Use real URLs from the search results.
- If nothing relevant is found, return {"results": []}.

Query: %s`, limit, query)
}
