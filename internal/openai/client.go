// Package openai is a small HTTP client for the OpenAI Responses endpoint,
// which carries the hosted web_search tool. Chat Completions go through
// github.com/sashabaranov/go-openai instead; that SDK has no Responses API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/FranksOps/leadgen/pkg/httpclient"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Client talks to the OpenAI REST API with a bearer key.
type Client struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
}

// New builds a Client. An empty baseURL uses DefaultBaseURL; a nil hc gets a
// default httpclient.
func New(apiKey, baseURL string, hc *httpclient.Client) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		var err error
		if hc, err = httpclient.New(httpclient.Config{}); err != nil {
			return nil, err
		}
	}
	return &Client{http: hc, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Type != "" {
		return fmt.Sprintf("openai %d %s: %s", e.StatusCode, e.Type, msg)
	}
	return fmt.Sprintf("openai %d: %s", e.StatusCode, msg)
}

// Temporary reports rate limiting and server-side failures.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)

	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+path, h, in, out)
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return parseAPIError(se)
	}
	return err
}

func parseAPIError(se *httpclient.StatusError) *APIError {
	apiErr := &APIError{StatusCode: se.StatusCode, Message: se.Body}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(se.Body), &body) == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
		apiErr.Type = body.Error.Type
		if body.Error.Code != nil {
			apiErr.Code = fmt.Sprint(body.Error.Code)
		}
	}
	return apiErr
}
