package llm

import (
	"fmt"

	"github.com/allergymenu/allergy-menu-assistant/internal/config"
)

// NewFromConfig builds the configured provider client.
func NewFromConfig(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiClient(cfg.GeminiModel, NewAPIKey(cfg.GeminiAPIKey), cfg.Timeout), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIModel, NewAPIKey(cfg.OpenAIAPIKey), cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
