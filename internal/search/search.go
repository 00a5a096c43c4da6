// Package search defines the web search boundary and the result shape that
// becomes lead data.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FranksOps/leadgen/internal/retry"
)

const (
	DefaultLimit = 10
	MaxLimit     = 25
)

// Provider runs one web search.
type Provider interface {
	// Search returns results in provider rank order. Zero results is not an error.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// Result is one search hit.
type Result struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position"`
	Source   string `json:"source"`
}

// Record renders the result as lead data.
func (r Result) Record() map[string]any {
	rec := map[string]any{
		"title":    r.Title,
		"link":     r.Link,
		"position": r.Position,
		"source":   r.Source,
	}
	if r.Snippet != "" {
		rec["snippet"] = r.Snippet
	}
	return rec
}

// Error is returned by every Provider on failure.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("search (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error, passing nil and existing *Error values through.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Provider: provider, Err: err}
}

// ErrEmptyQuery is returned for blank queries before any call is made.
var ErrEmptyQuery = errors.New("empty search query")

// CheckQuery trims query and rejects blank input.
func CheckQuery(provider, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", Wrap(provider, ErrEmptyQuery)
	}
	return q, nil
}

// ClampLimit maps limit into 1..MaxLimit, defaulting non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Finalize drops items with neither link nor title, trims the rest to limit,
// numbers positions from 1 and stamps the source.
func Finalize(source string, in []Result, limit int) []Result {
	out := make([]Result, 0, len(in))
	for _, r := range in {
		r.Title = strings.TrimSpace(r.Title)
		r.Link = strings.TrimSpace(r.Link)
		r.Snippet = strings.TrimSpace(r.Snippet)
		if r.Title == "" && r.Link == "" {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		r.Position = len(out) + 1
		r.Source = source
		out = append(out, r)
	}
	return out
}

type retrying struct {
	next   Provider
	policy retry.Policy
}

// WithRetry wraps p so transient failures are retried under policy. Every
// attempt gets policy.RequestTimeout.
func WithRetry(p Provider, policy retry.Policy) Provider {
	return &retrying{next: p, policy: policy}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) ([]Result, error) {
		return r.next.Search(ctx, query, limit)
	})
}
