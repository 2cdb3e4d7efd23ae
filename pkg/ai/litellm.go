package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LiteLLMService talks to an OpenAI-compatible proxy (LiteLLM) that fans out to the
// actual model providers.
type LiteLLMService struct {
	baseURL   string
	masterKey string
	client    *http.Client
}

func NewLiteLLMService(baseURL, masterKey string) *LiteLLMService {
	return &LiteLLMService{
		baseURL:   strings.TrimRight(baseURL, "/"),
		masterKey: masterKey,
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete implements Gateway
func (s *LiteLLMService) Complete(ctx context.Context, in CompletionRequest) (*Completion, error) {
	payload := chatRequest{
		Model: in.Model,
		Messages: []chatMessage{
			{Role: "system", Content: in.System},
			{Role: "user", Content: in.User},
		},
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}
	if in.JSON {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.masterKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.masterKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("litellm request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("litellm API error (%d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("litellm returned no choices")
	}

	out := &Completion{Content: result.Choices[0].Message.Content}
	if result.Usage != nil {
		total := result.Usage.TotalTokens
		out.TotalTokens = &total
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
