package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/vbonduro/caloriesnap/internal/llm"
)

// generate makes exactly one backend call bounded by timeout (no bound when
// timeout is zero).
func generate(ctx context.Context, backend llm.Backend, timeout time.Duration, logger *slog.Logger, op string, req llm.Request) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := backend.Generate(ctx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("remote call failed", "op", op, "backend", backend.Name(), "duration_ms", elapsed, "error", err)
		return "", err
	}
	logger.Info("remote call complete", "op", op, "backend", backend.Name(), "duration_ms", elapsed, "response_bytes", len(text))
	return text, nil
}
