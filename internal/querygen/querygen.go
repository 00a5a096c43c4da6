// Package querygen turns a target and its criteria into a single web search
// query using a language model.
package querygen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/storage"
)

// SystemPrompt is the instruction every generator sends.
const SystemPrompt = "You generate search queries for lead generation tasks. " +
	"Reply with exactly one web search query on a single line and nothing else."

// Input is what a generator sees for one target.
type Input struct {
	Target   *storage.Target
	Criteria storage.Criteria
}

// Generator produces one search query per target.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}

// Error is returned by every Generator on failure.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query generation (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error, passing nil and existing *Error values through.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return err
	}
	return &Error{Provider: provider, Err: err}
}

// UserPrompt renders the per-target message.
func UserPrompt(in Input) string {
	name := ""
	if in.Target != nil {
		name = in.Target.Name
	}
	return fmt.Sprintf("Target name: %s. Criteria: %s", name, in.Criteria.String())
}

var (
	labelRe = regexp.MustCompile(`(?i)^\s*(search\s+)?query\s*:\s*`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ErrEmptyQuery is returned when the model produced nothing usable.
var ErrEmptyQuery = errors.New("model returned an empty query")

// Sanitize reduces model output to a single clean query line: the first
// non-blank line, without a "Query:" label, wrapping quotes or backticks.
func Sanitize(raw string) (string, error) {
	line := ""
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		line = l
		break
	}

	line = labelRe.ReplaceAllString(line, "")
	line = strings.Trim(line, "\"'`“” ")
	line = spaceRe.ReplaceAllString(line, " ")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ErrEmptyQuery
	}
	return line, nil
}

type retrying struct {
	next   Generator
	policy retry.Policy
}

// WithRetry wraps g so transient failures are retried under p. Every attempt
// gets p.RequestTimeout.
func WithRetry(g Generator, p retry.Policy) Generator {
	return &retrying{next: g, policy: p}
}

func (r *retrying) Generate(ctx context.Context, in Input) (string, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.next.Generate(ctx, in)
	})
}
