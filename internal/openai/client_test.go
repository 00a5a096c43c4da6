package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponsesText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"resp_1","status":"completed","output":[
			{"type":"web_search_call","status":"completed"},
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"results\":"},{"type":"output_text","text":"[]}"}]}
		]}`))
	}))
	defer ts.Close()

	c, _ := New("sk-test", ts.URL, nil)
	resp, err := c.Responses(context.Background(), ResponsesRequest{Model: "gpt-4o-mini", Input: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Text(); got != `{"results":[]}` {
		t.Errorf("Expected joined output text, got %q", got)
	}
}

func TestAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer ts.Close()

	c, _ := New("sk-test", ts.URL, nil)
	_, err := c.Responses(context.Background(), ResponsesRequest{Model: "m", Input: "q"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Message != "Rate limit reached" || apiErr.Code != "rate_limit_exceeded" {
		t.Errorf("unexpected api error %+v", apiErr)
	}
	if !apiErr.Temporary() {
		t.Errorf("429 should be temporary")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New("  ", "", nil); err == nil {
		t.Error("Expected error for empty key")
	}
}
