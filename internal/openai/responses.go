package openai

import (
	"context"
	"strings"
)

// ResponseTool is a hosted tool for the Responses API, e.g. {"type":"web_search"}.
type ResponseTool struct {
	Type string `json:"type"`
}

type ResponsesRequest struct {
	Model        string         `json:"model"`
	Instructions string         `json:"instructions,omitempty"`
	Input        string         `json:"input"`
	Tools        []ResponseTool `json:"tools,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
}

type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ResponseOutput struct {
	Type    string            `json:"type"`
	Role    string            `json:"role,omitempty"`
	Content []ResponseContent `json:"content,omitempty"`
}

type ResponsesResponse struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Output []ResponseOutput `json:"output"`
}

// Text concatenates the output_text parts of every message item.
func (r *ResponsesResponse) Text() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// Responses calls /responses.
func (c *Client) Responses(ctx context.Context, req ResponsesRequest) (*ResponsesResponse, error) {
	var resp ResponsesResponse
	if err := c.post(ctx, "/responses", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
