package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"examrag/internal/logger"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 30 * 24 * time.Hour

// kv is the part of a Redis client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedEmbedder serves repeated texts from Redis and embeds only misses.
// Cache failures are logged and never fail an Embed call.
type CachedEmbedder struct {
	inner Embedder
	rdb   kv
	model string
}

// NewRedisCache connects to redisURL and wraps inner.
func NewRedisCache(ctx context.Context, redisURL, model string, inner Embedder) (*CachedEmbedder, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &CachedEmbedder{inner: inner, rdb: rdb, model: model}, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		raw, err := c.rdb.Get(ctx, c.key(text)).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				logger.Debug("Embedding cache read failed", "err", err)
			}
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
			continue
		}
		results[i] = vec
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for k, vec := range fresh {
		if k >= len(missIdx) {
			break
		}
		results[missIdx[k]] = vec
		if vec == nil {
			continue
		}
		raw, _ := json.Marshal(vec)
		if err := c.rdb.Set(ctx, c.key(missTexts[k]), raw, cacheTTL).Err(); err != nil {
			logger.Debug("Embedding cache write failed", "err", err)
		}
	}
	return results, nil
}
