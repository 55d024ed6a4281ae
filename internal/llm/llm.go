package llm

import (
	"context"
	"errors"

	"github.com/vbonduro/caloriesnap/internal/domain"
)

// ErrSchemaViolation means the model answered, but not in the shape the
// request's Schema demanded.
var ErrSchemaViolation = errors.New("response does not match schema")

// Backend is a hosted (or local) multimodal model. Implementations make
// exactly one attempt per call and return the model's raw text.
type Backend interface {
	// Name identifies the backend in logs, e.g. "gemini".
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is a single-turn prompt with an optional image attachment.
type Request struct {
	Prompt string
	Image  *domain.ImageAsset
	// Schema, when set, asks the backend for a JSON object of that shape.
	// Backends with native structured output map it onto their API; the rest
	// append Schema.Instruction to the prompt.
	Schema *Schema
}
