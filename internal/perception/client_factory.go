package perception

import (
	"fmt"
	"time"

	"scenepilot/internal/config"
)

// NewClient builds an LLMClient from configuration. An empty API key is an
// error here; callers that can run without AI should check
// config.AIEnabled first.
func NewClient(cfg config.LLMConfig) (LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 2 * time.Minute
	}

	switch cfg.Provider {
	case "openai", "":
		c := DefaultOpenAIConfig(cfg.APIKey)
		c.Timeout = timeout
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewOpenAIClientWithConfig(c), nil

	case "anthropic":
		c := DefaultAnthropicConfig(cfg.APIKey)
		c.Timeout = timeout
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewAnthropicClientWithConfig(c), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
