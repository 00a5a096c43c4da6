package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	oai "github.com/FranksOps/leadgen/internal/openai"
	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/internal/search"
)

func newSearcher(t *testing.T, handler http.HandlerFunc) *Searcher {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c, err := oai.New("sk-test", ts.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(c, "")
}

func outputText(text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"id":     "resp_1",
		"status": "completed",
		"output": []any{
			map[string]any{"type": "web_search_call", "status": "completed"},
			map[string]any{"type": "message", "role": "assistant", "content": []any{
				map[string]any{"type": "output_text", "text": text},
			}},
		},
	})
	return b
}

func TestSearch(t *testing.T) {
	s := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		var req oai.ResponsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Type != "web_search" {
			t.Errorf("Expected web_search tool, got %+v", req.Tools)
		}
		if !strings.Contains(req.Input, "SaaS companies Ohio") {
			t.Errorf("Expected query in input, got %q", req.Input)
		}
		_, _ = w.Write(outputText(`{"results":[{"title":"Acme","url":"https://acme.example","content":"SaaS in Columbus"}]}`))
	})

	results, err := s.Search(context.Background(), "SaaS companies Ohio", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Link != "https://acme.example" || results[0].Snippet != "SaaS in Columbus" || results[0].Source != "openai" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestSearch_ZeroResults(t *testing.T) {
	s := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(outputText(`{"results": []}`))
	})

	results, err := s.Search(context.Background(), "nothing", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}
}

func TestSearch_Unparseable(t *testing.T) {
	s := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(outputText("I was unable to search right now."))
	})

	results, err := s.Search(context.Background(), "acme", 10)
	var se *search.Error
	if !errors.As(err, &se) {
		t.Fatalf("Expected *search.Error, got %v", err)
	}
	if results != nil {
		t.Errorf("Expected nil results, got %+v", results)
	}
}

func TestSearch_ServerError(t *testing.T) {
	s := newSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := s.Search(context.Background(), "acme", 10)
	if !retry.IsTransient(err) {
		t.Errorf("Expected transient error, got %v", err)
	}
}
