package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType

	LiteLLMProxyURL  string
	LiteLLMMasterKey string

	GeminiAPIKey string
}

// NewGateway creates the Gateway selected by cfg.Provider.
func NewGateway(ctx context.Context, cfg Config, logger *zap.Logger) (Gateway, error) {
	switch cfg.Provider {
	case ProviderLiteLLM, "":
		return NewLiteLLMService(cfg.LiteLLMProxyURL, cfg.LiteLLMMasterKey), nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiService(ctx, cfg.GeminiAPIKey)

	case ProviderAuto:
		proxy := NewLiteLLMService(cfg.LiteLLMProxyURL, cfg.LiteLLMMasterKey)
		if cfg.GeminiAPIKey == "" {
			return proxy, nil
		}
		gemini, err := NewGeminiService(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return NewRouter(proxy, gemini, logger), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
