// Package openai generates search queries with OpenAI Chat Completions.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/FranksOps/leadgen/internal/querygen"
	"github.com/FranksOps/leadgen/internal/retry"
	"github.com/FranksOps/leadgen/pkg/httpclient"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = "gpt-4o-mini"
	providerName = "openai"
	functionName = "emit_search_query"
)

var _ querygen.Generator = (*Generator)(nil)

// Generator asks the model to call emit_search_query with the query.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewClient builds a go-openai client. An empty baseURL keeps the SDK
// default; a non-nil hc carries pacing and the User-Agent.
func NewClient(apiKey, baseURL string, hc *httpclient.Client) (*openai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if hc != nil {
		cfg.HTTPClient = hc.AsDoer()
	}
	return openai.NewClientWithConfig(cfg), nil
}

// New returns a Generator. An empty model uses DefaultModel.
func New(client *openai.Client, model string) *Generator {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Generator{client: client, model: model, temperature: 0.2}
}

var emitTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        functionName,
		Description: "Return the single web search query to run for this target.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	},
}

func (g *Generator) Generate(ctx context.Context, in querygen.Input) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: querygen.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: querygen.UserPrompt(in)},
		},
		Temperature: g.temperature,
		Tools:       []openai.Tool{emitTool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: functionName},
		},
	})
	if err != nil {
		return "", querygen.Wrap(providerName, classifyErr(err))
	}
	if len(resp.Choices) == 0 {
		return "", querygen.Wrap(providerName, errors.New("response has no choices"))
	}

	msg := resp.Choices[0].Message
	raw := msg.Content
	for _, call := range msg.ToolCalls {
		if call.Function.Name != functionName {
			continue
		}
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return "", querygen.Wrap(providerName, fmt.Errorf("decode %s arguments: %w", functionName, err))
		}
		raw = args.Query
		break
	}

	q, err := querygen.Sanitize(raw)
	if err != nil {
		return "", querygen.Wrap(providerName, err)
	}
	return q, nil
}

// classifyErr marks rate limiting and server-side failures as transient.
// The SDK reports a parsed error body as *APIError and anything else as
// *RequestError; both carry the HTTP status.
func classifyErr(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return retry.Transient(err)
	}
	if status == 0 && retry.IsTransient(err) {
		return retry.Transient(err)
	}
	return err
}
