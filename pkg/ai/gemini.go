package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiService calls Gemini models directly through the GenAI SDK.
type GeminiService struct {
	client *genai.Client
}

func NewGeminiService(ctx context.Context, apiKey string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiService{client: client}, nil
}

// Complete implements Gateway
func (g *GeminiService) Complete(ctx context.Context, in CompletionRequest) (*Completion, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(in.Temperature)),
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if in.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(in.System, genai.RoleUser)
	}
	if in.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, in.Model, genai.Text(in.User), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	out := &Completion{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		total := int(resp.UsageMetadata.TotalTokenCount)
		out.TotalTokens = &total
	}
	return out, nil
}
