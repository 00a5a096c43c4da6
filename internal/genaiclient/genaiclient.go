// Package genaiclient builds the Gemini client shared by the query generator
// and the grounded search provider, and maps its errors onto retry semantics.
package genaiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/FranksOps/leadgen/internal/retry"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey string
	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// New creates a Gemini API client.
func New(ctx context.Context, cfg Config) (*genai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	return genai.NewClient(ctx, cc)
}

// ClassifyErr wraps rate limiting, server errors and temporary network
// failures as retry.TransientError.
func ClassifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return retry.Transient(err)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return retry.Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Transient(err)
	}
	return err
}

// GroundingSource is one web page the model cited.
type GroundingSource struct {
	Title string
	URI   string
}

// GroundingSources returns the de-duplicated web sources of the first
// candidate, in order.
func GroundingSources(resp *genai.GenerateContentResponse) []GroundingSource {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	c := resp.Candidates[0]
	if c.GroundingMetadata == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []GroundingSource
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, GroundingSource{Title: strings.TrimSpace(chunk.Web.Title), URI: uri})
	}
	return out
}
