package llm

import (
	"fmt"
	"os"

	"mcphub/internal/config"
	"mcphub/pkg/logging"
)

// deepseekBaseURL is the default endpoint for the deepseek provider, which
// speaks the OpenAI-compatible chat protocol.
const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewProvider creates the completion backend selected by configuration.
//
// Supported providers:
//   - "openai": the official OpenAI API
//   - "anthropic": the Anthropic messages API
//   - "deepseek": deepseek's OpenAI-compatible endpoint
//   - "openai_compatible": any OpenAI-compatible endpoint; requires baseUrl
//
// A missing token falls back to the provider's conventional environment
// variable.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	switch cfg.Provider {
	case "openai":
		token := tokenOrEnv(cfg.Token, "OPENAI_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("llm: missing openai API key (set llm.token or OPENAI_API_KEY)")
		}
		logging.Info("LLM", "Using openai provider with model %s", cfg.Model)
		return NewOpenAIProvider(token, cfg.Model, cfg.BaseURL), nil

	case "anthropic":
		token := tokenOrEnv(cfg.Token, "ANTHROPIC_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("llm: missing anthropic API key (set llm.token or ANTHROPIC_API_KEY)")
		}
		logging.Info("LLM", "Using anthropic provider with model %s", cfg.Model)
		return NewAnthropicProvider(token, cfg.Model, cfg.BaseURL), nil

	case "deepseek":
		token := tokenOrEnv(cfg.Token, "DEEPSEEK_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("llm: missing deepseek API key (set llm.token or DEEPSEEK_API_KEY)")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = deepseekBaseURL
		}
		logging.Info("LLM", "Using deepseek provider with model %s", cfg.Model)
		return NewOpenAIProvider(token, cfg.Model, baseURL), nil

	case "openai_compatible":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm: baseUrl is required for the openai_compatible provider")
		}
		token := tokenOrEnv(cfg.Token, "OPENAI_API_KEY")
		if token == "" {
			return nil, fmt.Errorf("llm: missing API key for openai_compatible provider")
		}
		logging.Info("LLM", "Using openai-compatible provider at %s with model %s", cfg.BaseURL, cfg.Model)
		return NewOpenAIProvider(token, cfg.Model, cfg.BaseURL), nil

	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

func tokenOrEnv(token, envVar string) string {
	if token != "" {
		return token
	}
	return os.Getenv(envVar)
}
