package llm

import (
	"context"
	"strings"
)

// EchoClient is an offline provider that answers with the last user turn in
// upper case. It needs no credential and is meant for local development and
// gateway smoke tests.
type EchoClient struct{}

// NewEchoClient returns an EchoClient.
func NewEchoClient() *EchoClient { return &EchoClient{} }

// Complete upper-cases the most recent user message.
func (e *EchoClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	if last == "" {
		return nil, ErrEmptyResponse
	}
	return &CompletionResponse{
		Content:    strings.ToUpper(last),
		StopReason: "echo",
		Model:      "echo",
	}, nil
}

// Name returns the provider name.
func (e *EchoClient) Name() string { return "echo" }
