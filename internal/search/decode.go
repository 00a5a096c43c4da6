package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type rawItem struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Link        string `json:"link"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// DecodeResults parses model-produced JSON of the form {"results": [...]}
// or a bare array. An object without a results array is an error, not an
// empty result set. Markdown code fences and leading prose are tolerated.
// Items may use link or url, and snippet, description or content.
func DecodeResults(text string) ([]Result, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, errors.New("no JSON in response")
	}

	var items []json.RawMessage
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &items); err != nil {
			return nil, fmt.Errorf("decode results array: %w", err)
		}
	} else {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return nil, fmt.Errorf("decode results object: %w", err)
		}
		raw, ok := wrapper["results"]
		if !ok {
			return nil, errors.New("response has no results key")
		}
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			return nil, fmt.Errorf("results is not an array: %.40s", raw)
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode results array: %w", err)
		}
	}

	out := make([]Result, 0, len(items))
	for _, raw := range items {
		var it rawItem
		if err := json.Unmarshal(raw, &it); err != nil {
			// Skip malformed entries and keep the rest.
			continue
		}
		out = append(out, Result{
			Title:   first(it.Title, it.Name),
			Link:    first(it.Link, it.URL),
			Snippet: first(it.Snippet, it.Description, it.Content),
		})
	}
	return out, nil
}

func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// drop the language tag line
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func first(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
