package pipeline

import (
	"context"
	"log/slog"

	"github.com/vbonduro/caloriesnap/internal/domain"
)

// identifier is the subset of analysis.Identifier that Runner requires.
type identifier interface {
	Identify(ctx context.Context, asset *domain.ImageAsset) (domain.FoodItemList, error)
}

// estimator is the subset of analysis.Estimator that Runner requires.
type estimator interface {
	Estimate(ctx context.Context, items domain.FoodItemList) (domain.CalorieEstimate, error)
}

// Result is the outcome of a successful run. Estimate is nil when no food was
// identified.
type Result struct {
	Items    domain.FoodItemList
	Estimate *domain.CalorieEstimate
}

// StageError records which stage of a run failed.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Message is the user-facing description of the failure.
func (e *StageError) Message() string {
	if e.Stage == domain.StageEstimating {
		return "Failed to estimate calories: " + e.Err.Error()
	}
	return "Failed to identify food items: " + e.Err.Error()
}

// Runner executes identification then estimation for one image.
type Runner struct {
	identifier identifier
	estimator  estimator
	logger     *slog.Logger
}

func NewRunner(identifier identifier, estimator estimator, logger *slog.Logger) *Runner {
	return &Runner{identifier: identifier, estimator: estimator, logger: logger}
}

// Run performs one pipeline run synchronously. progress, if non-nil, is called
// as each stage begins. Errors are *StageError.
func (r *Runner) Run(ctx context.Context, asset *domain.ImageAsset, progress func(domain.Stage)) (Result, error) {
	if progress == nil {
		progress = func(domain.Stage) {}
	}

	progress(domain.StageIdentifying)
	items, err := r.identifier.Identify(ctx, asset)
	if err != nil {
		return Result{}, &StageError{Stage: domain.StageIdentifying, Err: err}
	}
	r.logger.Info("food items identified", "items", len(items))

	if len(items) == 0 {
		return Result{Items: items}, nil
	}

	progress(domain.StageEstimating)
	estimate, err := r.estimator.Estimate(ctx, items)
	if err != nil {
		return Result{}, &StageError{Stage: domain.StageEstimating, Err: err}
	}
	r.logger.Info("calories estimated", "items", len(items), "estimate_bytes", len(estimate))
	return Result{Items: items, Estimate: &estimate}, nil
}
