package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vbonduro/caloriesnap/internal/llm"
)

// generator is the subset of *genai.GenerativeModel the backend calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type GeminiBackend struct {
	client   *genai.Client
	model    string
	newModel func(req llm.Request) generator
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	b := &GeminiBackend{client: client, model: model}
	b.newModel = b.configuredModel
	return b, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Close() error {
	return b.client.Close()
}

// configuredModel returns a fresh model handle, with structured output enabled
// when the request carries a schema.
func (b *GeminiBackend) configuredModel(req llm.Request) generator {
	m := b.client.GenerativeModel(b.model)
	if req.Schema != nil {
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = toGenaiSchema(req.Schema)
	}
	return m
}

func (b *GeminiBackend) Generate(ctx context.Context, req llm.Request) (string, error) {
	parts := make([]genai.Part, 0, 2)
	if req.Image != nil {
		data, err := req.Image.Bytes()
		if err != nil {
			return "", fmt.Errorf("failed to decode image: %w", err)
		}
		parts = append(parts, genai.Blob{MIMEType: req.Image.MediaType(), Data: data})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := b.newModel(req).GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini: no text in response")
	}
	return b.String(), nil
}

func toGenaiSchema(s *llm.Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := &genai.Schema{Type: genai.TypeString, Description: f.Description}
		if f.Kind == llm.KindStringList {
			prop.Type = genai.TypeArray
			prop.Items = &genai.Schema{Type: genai.TypeString}
		}
		props[f.Name] = prop
		required = append(required, f.Name)
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   required,
	}
}
