package embeddings

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/config"
)

// FromConfig builds the embedder named by cfg, wrapped in the LRU cache.
func FromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case config.ProviderLocal:
		e = NewHashingEmbedder(cfg.Dimensions)
	case config.ProviderOpenAI:
		key := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if key == "" && cfg.BaseURL == "" {
			return nil, apperr.NotConfigured("OPENAI_API_KEY for embeddings")
		}
		e = NewOpenAIEmbedder(key, OpenAIModel(cfg.Model), cfg.BaseURL, cfg.Dimensions)
	case config.ProviderOllama:
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 768
		}
		e = NewOllamaEmbedder(cfg.Model, dims, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", apperr.ErrValidation, cfg.Provider)
	}
	return WithLRUCache(e, cfg.CacheSize, cfg.CacheTTL), nil
}
