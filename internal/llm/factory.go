package llm

import (
	"fmt"
	"os"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/config"
)

const defaultMaxTokens = 4096

// NewProvider creates a new LLM provider based on the given provider type and model.
// Supported provider types: "anthropic", "openai", "ollama".
func NewProvider(providerType config.ProviderType, model, baseURL string) (Provider, error) {
	switch providerType {
	case config.ProviderAnthropic:
		apiKey := os.Getenv(config.APIKeyEnvVar(providerType))
		if apiKey == "" {
			return nil, apperr.NotConfigured("ANTHROPIC_API_KEY environment variable is not set")
		}
		return NewAnthropicProvider(apiKey, model, baseURL), nil

	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(providerType))
		if apiKey == "" && baseURL == "" {
			return nil, apperr.NotConfigured("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(apiKey, model, baseURL), nil

	case config.ProviderOllama:
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(baseURL, model), nil

	default:
		return nil, fmt.Errorf("%w: unsupported provider type: %s", apperr.ErrValidation, providerType)
	}
}

// FromConfig builds the configured provider, rate limited. Provider "none"
// yields a nil Provider and no error: answering then reports that no model
// is configured.
func FromConfig(cfg config.LLMConfig) (Provider, error) {
	if cfg.Provider == config.ProviderNone || cfg.Provider == "" {
		return nil, nil
	}
	p, err := NewProvider(cfg.Provider, cfg.Model, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return NewRateLimitedProvider(p, cfg.RequestsPerMinute), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
