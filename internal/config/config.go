package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings read from the environment.
// Every external integration is optional: an empty key disables that feature.
type Config struct {
	// Storage
	Store       string // "postgres" or "sqlite"
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	ObjectDir   string
	SigningKey  string
	RunsDir     string

	// LLM
	LLMProvider  string // "openai" (OpenRouter-compatible), "anthropic", "huggingface", "gemini"
	LLMAPIKey    string
	LLMModel     string
	LLMBaseURL   string
	LLMRPM       int
	AnthropicKey string
	GeminiKey    string
	HFKey        string

	// Embeddings
	EmbedProvider string // "openai", "huggingface", "ollama"
	EmbedModel    string
	EmbedDim      int
	OpenAIKey     string
	OllamaHost    string

	// OCR
	VisionKey     string
	MathpixAppID  string
	MathpixAppKey string

	CallTimeout time.Duration
	TuningFile  string
	LogLevel    string
	LogFormat   string

	Tuning Tuning
}

// Load reads .env (if present), the environment and the optional tuning file.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Store:       strings.ToLower(getEnv("STORE", "postgres")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "data/examrag.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		ObjectDir:   getEnv("OBJECT_DIR", "data/objects"),
		SigningKey:  getEnv("OBJECT_SIGNING_KEY", ""),
		RunsDir:     getEnv("RUNS_DIR", "data/runs"),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		LLMModel:     getEnv("LLM_MODEL", ""),
		LLMBaseURL:   getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMRPM:       getEnvInt("LLM_RPM", 60),
		AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
		GeminiKey:    getEnv("GEMINI_API_KEY", ""),
		HFKey:        getEnv("HF_API_KEY", ""),

		EmbedProvider: strings.ToLower(getEnv("EMBED_PROVIDER", "huggingface")),
		EmbedModel:    getEnv("EMBED_MODEL", ""),
		EmbedDim:      getEnvInt("EMBED_DIM", 384),
		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OllamaHost:    getEnv("OLLAMA_HOST", ""),

		VisionKey:     getEnv("GOOGLE_VISION_API_KEY", ""),
		MathpixAppID:  getEnv("MATHPIX_APP_ID", ""),
		MathpixAppKey: getEnv("MATHPIX_APP_KEY", ""),

		CallTimeout: getEnvDuration("CALL_TIMEOUT", 30*time.Second),
		TuningFile:  getEnv("TUNING_FILE", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	cfg.Tuning = tuning

	return cfg, nil
}

// Warnings lists settings that work but are unsafe or surprising. The
// caller logs them once, after logging is initialized.
func (c *Config) Warnings() []string {
	var w []string
	if c.SigningKey == "" {
		w = append(w, "OBJECT_SIGNING_KEY is not set; signed object URLs use a key derived from hostname and working directory")
	}
	return w
}

// LLMKey returns the credential for the configured LLM provider.
func (c *Config) LLMKey() string {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicKey
	case "gemini":
		return c.GeminiKey
	case "huggingface":
		return c.HFKey
	default:
		return c.LLMAPIKey
	}
}

// EmbedKey returns the credential for the configured embedding provider.
func (c *Config) EmbedKey() string {
	switch c.EmbedProvider {
	case "openai":
		return c.OpenAIKey
	case "huggingface":
		return c.HFKey
	default:
		return ""
	}
}

// MathpixEnabled reports whether both Mathpix credentials are present.
func (c *Config) MathpixEnabled() bool {
	return c.MathpixAppID != "" && c.MathpixAppKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
