package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/caloriesnap/internal/domain"
	"github.com/vbonduro/caloriesnap/internal/llm"
)

// Identifier asks the model which food items appear in a photo.
type Identifier struct {
	backend llm.Backend
	timeout time.Duration
	logger  *slog.Logger
}

func NewIdentifier(backend llm.Backend, timeout time.Duration, logger *slog.Logger) *Identifier {
	return &Identifier{backend: backend, timeout: timeout, logger: logger}
}

// Identify returns the food items in the photo, in the order the model listed
// them. An empty list is a valid answer. Every failure, including a malformed
// response, wraps domain.ErrRemoteCall.
func (i *Identifier) Identify(ctx context.Context, asset *domain.ImageAsset) (domain.FoodItemList, error) {
	if asset == nil {
		return nil, fmt.Errorf("%w: no image", domain.ErrInvalidInput)
	}

	text, err := generate(ctx, i.backend, i.timeout, i.logger, "identify", llm.Request{
		Prompt: identifyPrompt,
		Image:  asset,
		Schema: foodItemsSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRemoteCall, err)
	}

	items, err := parseFoodItems(text)
	if err != nil {
		i.logger.Warn("identify response rejected", "backend", i.backend.Name(), "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrRemoteCall, err)
	}
	return items, nil
}

func parseFoodItems(text string) (domain.FoodItemList, error) {
	obj, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var resp struct {
		FoodItems *[]string `json:"foodItems"`
	}
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrSchemaViolation, err)
	}
	if resp.FoodItems == nil {
		return nil, fmt.Errorf("%w: foodItems missing or null", llm.ErrSchemaViolation)
	}

	items := make(domain.FoodItemList, 0, len(*resp.FoodItems))
	for _, label := range *resp.FoodItems {
		if label = strings.TrimSpace(label); label != "" {
			items = append(items, label)
		}
	}
	return items, nil
}
