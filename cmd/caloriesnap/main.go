package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbonduro/caloriesnap/internal/analysis"
	"github.com/vbonduro/caloriesnap/internal/config"
	"github.com/vbonduro/caloriesnap/internal/ingest"
	"github.com/vbonduro/caloriesnap/internal/llm"
	claudellm "github.com/vbonduro/caloriesnap/internal/llm/claude"
	geminillm "github.com/vbonduro/caloriesnap/internal/llm/gemini"
	ollamallm "github.com/vbonduro/caloriesnap/internal/llm/ollama"
	openaillm "github.com/vbonduro/caloriesnap/internal/llm/openai"
	"github.com/vbonduro/caloriesnap/internal/logging"
	"github.com/vbonduro/caloriesnap/internal/pipeline"
	"github.com/vbonduro/caloriesnap/internal/session"
	"github.com/vbonduro/caloriesnap/internal/web"
	"github.com/vbonduro/caloriesnap/internal/web/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := backend.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Error("failed to close model backend", "error", err)
			}
		}()
	}

	ing := ingest.New(cfg.MaxUploadBytes)
	runner := pipeline.NewRunner(
		analysis.NewIdentifier(backend, cfg.RemoteTimeout, logger),
		analysis.NewEstimator(backend, cfg.RemoteTimeout, logger),
		logger,
	)
	sessions := session.NewRegistry(cfg.SessionTTL, func(id string) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(ing, runner, logger.With("session_id", id))
	}, logger)
	defer sessions.Close()
	go sessions.Run(ctx)

	server := web.NewServer(sessions, runner, ing, backend.Name(), templates.FS, logger)
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}

func newBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Backend, error) {
	switch cfg.ModelBackend {
	case config.BackendGemini:
		logger.Info("using Gemini model backend", "model", cfg.GeminiModel)
		b, err := geminillm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendClaude:
		logger.Info("using Claude model backend", "model", cfg.ClaudeModel)
		return claudellm.NewClaudeBackend(cfg.ClaudeAPIKey, cfg.ClaudeModel), nil
	case config.BackendOpenAI:
		logger.Info("using OpenAI model backend", "model", cfg.OpenAIModel, "base_url", cfg.OpenAIBaseURL)
		return openaillm.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case config.BackendOllama:
		logger.Info("using Ollama model backend", "host", cfg.OllamaHost, "model", cfg.OllamaModel)
		b, err := ollamallm.NewOllamaBackend(cfg.OllamaHost, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown MODEL_BACKEND %q", cfg.ModelBackend)
	}
}
