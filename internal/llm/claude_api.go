package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultClaudeEndpoint is the base URL of the Anthropic API.
	DefaultClaudeEndpoint = "https://api.anthropic.com"

	anthropicVersion = "2023-06-01"

	// The Messages API rejects requests without max_tokens.
	claudeDefaultMaxTokens = 1024
)

// ClaudeAPIClient talks to the Anthropic Messages API.
type ClaudeAPIClient struct {
	apiClient
}

// NewClaudeAPIClient creates a Claude client. An empty endpoint selects
// DefaultClaudeEndpoint.
func NewClaudeAPIClient(apiKey, model, endpoint string) *ClaudeAPIClient {
	return &ClaudeAPIClient{newAPIClient("claude", apiKey, model, endpoint, DefaultClaudeEndpoint)}
}

func (c *ClaudeAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	headers := http.Header{}
	headers.Set("x-api-key", c.apiKey)
	headers.Set("anthropic-version", anthropicVersion)

	var msg claudeMessage
	if err := c.post(ctx, c.endpoint+"/v1/messages", headers, c.encode(req), &msg); err != nil {
		return nil, err
	}

	out := msg.completion()
	if out.Content == "" {
		return nil, ErrEmptyResponse
	}
	out.Duration = time.Since(start)
	return out, nil
}

func (c *ClaudeAPIClient) encode(req CompletionRequest) claudeRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}
	return claudeRequest{
		Model:       c.modelFor(req),
		System:      req.System,
		Messages:    append([]Message(nil), req.Messages...),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

type claudeRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type claudeMessage struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// completion joins the text blocks; tool and thinking blocks are skipped.
func (m *claudeMessage) completion() *CompletionResponse {
	var text strings.Builder
	for _, block := range m.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &CompletionResponse{
		Content:    text.String(),
		StopReason: m.StopReason,
		Usage:      Usage{InputTokens: m.Usage.InputTokens, OutputTokens: m.Usage.OutputTokens},
		Model:      m.Model,
	}
}
