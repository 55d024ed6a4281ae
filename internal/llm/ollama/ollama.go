package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/vbonduro/caloriesnap/internal/llm"
)

type OllamaBackend struct {
	client *api.Client
	model  string
}

func NewOllamaBackend(host, model string) (*OllamaBackend, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaBackend{
		client: api.NewClient(u, &http.Client{}),
		model:  model,
	}, nil
}

func (b *OllamaBackend) Name() string { return "ollama" }

// Generate runs a non-streaming /api/generate call. A schema is passed as the
// request format so the model is constrained to emit matching JSON.
func (b *OllamaBackend) Generate(ctx context.Context, req llm.Request) (string, error) {
	stream := false
	genReq := &api.GenerateRequest{
		Model:  b.model,
		Prompt: req.Prompt,
		Stream: &stream,
	}
	if req.Image != nil {
		data, err := req.Image.Bytes()
		if err != nil {
			return "", fmt.Errorf("failed to decode image: %w", err)
		}
		genReq.Images = []api.ImageData{data}
	}
	if req.Schema != nil {
		genReq.Format = req.Schema.RawJSONSchema()
	}

	var text strings.Builder
	err := b.client.Generate(ctx, genReq, func(gr api.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	return text.String(), nil
}
