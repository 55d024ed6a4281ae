package claude

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/caloriesnap/internal/llm"
)

const defaultMaxTokens = 1024

type ClaudeBackend struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewClaudeBackend(apiKey, model string) *ClaudeBackend {
	return newClaudeBackend(apiKey, model)
}

func newClaudeBackend(apiKey, model string, opts ...anthropic.ClientOption) *ClaudeBackend {
	return &ClaudeBackend{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

func (b *ClaudeBackend) Name() string { return "claude" }

// Generate sends one Messages API request. Claude has no native schema
// enforcement here, so the schema is appended to the prompt as instructions.
func (b *ClaudeBackend) Generate(ctx context.Context, req llm.Request) (string, error) {
	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: buildContent(req),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeText {
			return c.GetText(), nil
		}
	}
	return "", fmt.Errorf("claude returned no text content")
}

// buildContent places the image before the text.
func buildContent(req llm.Request) []anthropic.MessageContent {
	content := make([]anthropic.MessageContent, 0, 2)
	if req.Image != nil {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				normaliseMIME(req.Image.MediaType()),
				req.Image.Base64(),
			),
		))
	}
	return append(content, anthropic.NewTextMessageContent(llm.PromptWithInstruction(req)))
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// The Anthropic API accepts only jpeg, png, gif, and webp. Unknown types are
// coerced to jpeg as the most universally supported lossy fallback.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
