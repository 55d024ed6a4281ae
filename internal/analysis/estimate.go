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

// Estimator asks the model for a calorie breakdown of a list of food items.
type Estimator struct {
	backend llm.Backend
	timeout time.Duration
	logger  *slog.Logger
}

func NewEstimator(backend llm.Backend, timeout time.Duration, logger *slog.Logger) *Estimator {
	return &Estimator{backend: backend, timeout: timeout, logger: logger}
}

// Estimate fails with domain.ErrInvalidInput, without calling the model, when
// items is empty.
func (e *Estimator) Estimate(ctx context.Context, items domain.FoodItemList) (domain.CalorieEstimate, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no food items to estimate", domain.ErrInvalidInput)
	}

	text, err := generate(ctx, e.backend, e.timeout, e.logger, "estimate", llm.Request{
		Prompt: fmt.Sprintf(estimatePrompt, items.Joined()),
		Schema: calorieEstimateSchema,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRemoteCall, err)
	}

	estimate, err := parseEstimate(text)
	if err != nil {
		e.logger.Warn("estimate response rejected", "backend", e.backend.Name(), "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrRemoteCall, err)
	}
	return estimate, nil
}

func parseEstimate(text string) (domain.CalorieEstimate, error) {
	obj, err := llm.ExtractJSON(text)
	if err != nil {
		return "", err
	}

	var resp struct {
		EstimatedCalories *string `json:"estimatedCalories"`
	}
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrSchemaViolation, err)
	}
	if resp.EstimatedCalories == nil {
		return "", fmt.Errorf("%w: estimatedCalories missing or null", llm.ErrSchemaViolation)
	}
	estimate := strings.TrimSpace(*resp.EstimatedCalories)
	if estimate == "" {
		return "", fmt.Errorf("%w: estimatedCalories is blank", llm.ErrSchemaViolation)
	}
	return domain.CalorieEstimate(estimate), nil
}
