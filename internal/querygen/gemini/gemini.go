// Package gemini generates search queries with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FranksOps/leadgen/internal/genaiclient"
	"github.com/FranksOps/leadgen/internal/querygen"
	"google.golang.org/genai"
)

const providerName = "gemini"

var _ querygen.Generator = (*Generator)(nil)

type Generator struct {
	client *genai.Client
	model  string
}

// New returns a Generator. An empty model uses genaiclient.DefaultModel.
func New(client *genai.Client, model string) *Generator {
	if strings.TrimSpace(model) == "" {
		model = genaiclient.DefaultModel
	}
	return &Generator{client: client, model: strings.TrimSpace(model)}
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"query": {Type: genai.TypeString},
	},
	Required: []string{"query"},
}

func (g *Generator) Generate(ctx context.Context, in querygen.Input) (string, error) {
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(querygen.UserPrompt(in)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(querygen.SystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.2),
			CandidateCount:    1,
			ResponseMIMEType:  "application/json",
			ResponseSchema:    outputSchema,
		},
	)
	if err != nil {
		return "", querygen.Wrap(providerName, genaiclient.ClassifyErr(err))
	}

	var parsed struct {
		Query string `json:"query"`
	}
	text := resp.Text()
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		// Some models ignore the schema and answer in plain text.
		parsed.Query = text
	}

	q, err := querygen.Sanitize(parsed.Query)
	if err != nil {
		return "", querygen.Wrap(providerName, fmt.Errorf("%w (finish: %s)", err, finishReason(resp)))
	}
	return q, nil
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "no candidates"
	}
	return string(resp.Candidates[0].FinishReason)
}
