// Package llm is the conversational service boundary: provider clients that
// turn a system instruction plus turn history into an assistant reply, and the
// session type that keeps that history between calls.
//
// Providers are plain HTTP clients for the hosted APIs (Gemini, Claude) plus an
// offline echo provider for development. A Registry resolves provider names and
// a FailoverClient walks configured fallbacks on retryable errors.
package llm

import (
	"context"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all LLM providers must implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "claude", "gemini").
	Name() string
}

// DisplayName returns the human-facing name of a provider, used in error
// banners ("Failed to get response from Gemini.").
func DisplayName(provider string) string {
	switch provider {
	case "gemini":
		return "Gemini"
	case "claude":
		return "Claude"
	case "echo":
		return "Echo"
	case "":
		return "the assistant"
	}
	return provider
}
