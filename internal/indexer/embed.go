// Package indexer turns chunks into embedded store rows: it generates
// embeddings through a pluggable Embedder and uploads rows in batches.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"examrag/internal/config"
	"examrag/internal/logger"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"github.com/sashabaranov/go-openai"
)

// Embedder turns texts into vectors of one fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const huggingFaceURL = "https://router.huggingface.co/hf-inference/models/"

// NewEmbedder creates the embedding backend named by provider. dim is the
// dimension the store was created with.
func NewEmbedder(provider, apiKey, model, ollamaHost string, dim int) (Embedder, error) {
	switch strings.ToLower(provider) {
	case "huggingface", "":
		if model == "" {
			model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		return &HuggingFaceEmbedder{apiKey: apiKey, model: model, url: huggingFaceURL + model}, nil
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai embeddings need OPENAI_API_KEY")
		}
		if model == "" {
			model = "text-embedding-3-small"
		}
		return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: model, dim: dim}, nil
	case "ollama":
		if model == "" {
			model = "all-minilm"
		}
		host := envconfig.Host()
		if ollamaHost != "" {
			u, err := url.Parse(ollamaHost)
			if err != nil {
				return nil, fmt.Errorf("invalid OLLAMA_HOST: %w", err)
			}
			host = u
		}
		return &OllamaEmbedder{client: api.NewClient(host, http.DefaultClient), model: model}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}

// NewFromConfig builds the configured embedder, cached in Redis when
// REDIS_URL is set. A Redis that cannot be reached is logged and skipped.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Embedder, error) {
	e, err := NewEmbedder(cfg.EmbedProvider, cfg.EmbedKey(), cfg.EmbedModel, cfg.OllamaHost, cfg.EmbedDim)
	if err != nil {
		return nil, err
	}
	if cfg.RedisURL == "" {
		return e, nil
	}
	cached, err := NewRedisCache(ctx, cfg.RedisURL, cfg.EmbedProvider+"/"+cfg.EmbedModel, e)
	if err != nil {
		logger.Warn("Embedding cache disabled", "err", err)
		return e, nil
	}
	return cached, nil
}

// ==========================================
// OpenAI Embedder
// ==========================================
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(results) {
			results[d.Index] = d.Embedding
		}
	}
	return results, nil
}

// ==========================================
// HuggingFace Embedder
// ==========================================
type HuggingFaceEmbedder struct {
	apiKey string
	model  string
	url    string
}

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"inputs": texts,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", e.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HF api error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var hfResp [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&hfResp); err != nil {
		return nil, err
	}

	results := make([][]float32, 0, len(hfResp))
	for _, vec := range hfResp {
		results = append(results, toFloat32(vec))
	}
	return results, nil
}

// ==========================================
// Ollama Embedder
// ==========================================
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// Embed issues one request per text; the endpoint takes a single prompt.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for _, text := range texts {
		resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
			Model:  e.model,
			Prompt: text,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
		results = append(results, toFloat32(resp.Embedding))
	}
	return results, nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
