package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"examrag/internal/logger"
)

// Generator embeds many texts concurrently through one Embedder.
type Generator struct {
	Embedder Embedder
	// Dim rejects vectors of any other length; 0 accepts any length.
	Dim     int
	Workers int
	Timeout time.Duration
}

func NewGenerator(e Embedder, dim, workers int, timeout time.Duration) *Generator {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{Embedder: e, Dim: dim, Workers: workers, Timeout: timeout}
}

// Embed returns the embedding of one text.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	vecs, err := g.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || vecs[0] == nil {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	if g.Dim > 0 && len(vecs[0]) != g.Dim {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(vecs[0]), g.Dim)
	}
	return vecs[0], nil
}

// EmbedAll returns one slot per text in input order. A text whose embedding
// failed has a nil slot; failures are logged and not retried.
func (g *Generator) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out
	}

	sem := make(chan struct{}, g.Workers)
	var wg sync.WaitGroup
	var failed, done atomic.Int32

dispatch:
	for i, text := range texts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		wg.Add(1)

		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := g.Embed(ctx, text)
			if err != nil {
				failed.Add(1)
				logger.Warn("Embedding failed", "index", i, "err", err)
				return
			}
			// each goroutine owns its slot
			out[i] = vec
			done.Add(1)
		}(i, text)
	}

	wg.Wait()
	logger.Info("Embedded texts", "total", len(texts), "ok", done.Load(), "failed", failed.Load())
	return out
}
