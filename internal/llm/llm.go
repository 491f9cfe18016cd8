package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"examrag/internal/config"

	"github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned when no LLM backend has credentials.
var ErrNotConfigured = errors.New("llm: not configured")

// Request is one chat completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON asks backends that support it for a JSON response.
	JSON bool
}

// Completer defines the interface for different LLM backends.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// DefaultOpenRouterModel is used when LLM_MODEL is unset on the openai backend.
const DefaultOpenRouterModel = "openai/gpt-4o-mini"

// NewCompleter creates the backend named by providerName. An empty apiKey
// yields ErrNotConfigured so callers can fall back without an LLM.
func NewCompleter(ctx context.Context, providerName, apiKey, model, baseURL string) (Completer, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	switch strings.ToLower(providerName) {
	case "openai", "openrouter", "":
		if model == "" {
			model = DefaultOpenRouterModel
		}
		cc := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cc.BaseURL = baseURL
		}
		return &OpenAIBackend{client: openai.NewClientWithConfig(cc), model: model}, nil
	case "huggingface":
		if model == "" {
			model = "mistralai/Mistral-7B-Instruct-v0.3"
		}
		return &HuggingFaceBackend{apiKey: apiKey, model: model, url: huggingFaceURL}, nil
	case "anthropic":
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		return &AnthropicBackend{apiKey: apiKey, model: model, url: anthropicURL}, nil
	case "gemini":
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return NewGeminiBackend(ctx, apiKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", providerName)
	}
}

// NewFromConfig builds the configured backend wrapped in a Guard. It returns
// ErrNotConfigured when the provider has no key.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Completer, error) {
	c, err := NewCompleter(ctx, cfg.LLMProvider, cfg.LLMKey(), cfg.LLMModel, cfg.LLMBaseURL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewGuard(cfg.LLMProvider, c, cfg.LLMRPM, timeout), nil
}
