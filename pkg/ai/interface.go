package ai

import "context"

// CompletionRequest is a single chat completion call.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	JSON        bool // ask the backend for a JSON object response
	Temperature float64
	MaxTokens   int
}

// Completion is the raw model output. TotalTokens is nil when the backend does not report usage.
type Completion struct {
	Content     string
	TotalTokens *int
}

// Gateway is the language-model backend used for enrichment.
// Implement this interface to add new AI providers.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderLiteLLM ProviderType = "litellm"
	ProviderGemini  ProviderType = "gemini"
	ProviderAuto    ProviderType = "auto"
)
