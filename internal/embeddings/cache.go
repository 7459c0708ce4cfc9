package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/logging"
)

// WithLRUCache wraps e so repeated texts are embedded once. A non-positive
// size or ttl disables caching and returns e unchanged.
func WithLRUCache(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &cachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (c *cachedEmbedder) Name() string    { return c.next.Name() }
func (c *cachedEmbedder) Dimensions() int { return c.next.Dimensions() }

func (c *cachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		keys[i] = c.key(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = clone(v)
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if hits := len(texts) - len(missTexts); hits > 0 {
		logging.FromContext(ctx).Debug("embedding cache hit", zap.Int("hits", hits), zap.Int("misses", len(missTexts)))
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range fresh {
		i := missIdx[j]
		out[i] = v
		c.cache.Add(keys[i], clone(v))
	}
	return out, nil
}

func (c *cachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.next.Name() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func clone(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
