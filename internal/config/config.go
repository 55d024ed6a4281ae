package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendClaude = "claude"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

type Config struct {
	ListenAddr     string
	ModelBackend   string
	GeminiAPIKey   string
	GeminiModel    string
	ClaudeAPIKey   string
	ClaudeModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	OllamaHost     string
	OllamaModel    string
	RemoteTimeout  time.Duration
	MaxUploadBytes int64
	SessionTTL     time.Duration
	LogLevel       string
	LogFile        string
	LogFormat      string
}

// Load reads configuration from the environment, after applying an optional
// .env file in the working directory. Variables already set win over the file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		ModelBackend:  getEnv("MODEL_BACKEND", BackendGemini),
		GeminiAPIKey:  getEnv("GOOGLE_GENAI_API_KEY", getEnv("GEMINI_API_KEY", "")),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ClaudeAPIKey:  getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:   getEnv("CLAUDE_MODEL", "claude-opus-4-6"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llava"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.RemoteTimeout, err = getDuration("REMOTE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend is known and has what it needs
// to connect.
func (c *Config) Validate() error {
	switch c.ModelBackend {
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GOOGLE_GENAI_API_KEY is required when MODEL_BACKEND=gemini")
		}
	case BackendClaude:
		if c.ClaudeAPIKey == "" {
			return errors.New("CLAUDE_API_KEY is required when MODEL_BACKEND=claude")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when MODEL_BACKEND=openai")
		}
	case BackendOllama:
		if c.OllamaHost == "" {
			return errors.New("OLLAMA_HOST is required when MODEL_BACKEND=ollama")
		}
	default:
		return fmt.Errorf("unknown MODEL_BACKEND %q", c.ModelBackend)
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("REMOTE_TIMEOUT must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}
