package narrative

import (
	"fmt"

	"github.com/ashureev/jira-pulse/internal/config"
)

// NewProvider returns the provider selected by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
