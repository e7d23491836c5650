package llm

import (
	"fmt"
	"strings"

	"towncrier/pkg/config"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	APIURL      string
	MaxTokens   int
	Temperature float64
}

// LoadConfig loads provider configuration from LLM_* env vars. The API key
// falls back to PERPLEXITY_API_KEY for drop-in compatibility with existing
// deployments.
func LoadConfig() Config {
	return Config{
		Provider:    config.GetEnv("LLM_PROVIDER", "perplexity"),
		Model:       config.GetEnv("LLM_MODEL", "sonar"),
		APIKey:      config.GetEnv("LLM_API_KEY", config.GetEnv("PERPLEXITY_API_KEY", "")),
		APIURL:      config.GetEnv("LLM_API_URL", ""),
		MaxTokens:   config.GetEnvInt("LLM_MAX_TOKENS", 2000),
		Temperature: config.GetEnvFloat("LLM_TEMPERATURE", 0.7),
	}
}

func NewProvider(cfg Config, opts ...Option) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "perplexity", "openai", "":
		return NewOpenAIProvider(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
