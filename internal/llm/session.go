package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// ErrMissingCredential is returned when a provider that needs an API key has none.
var ErrMissingCredential = errors.New("API_KEY environment variable not set.")

// ServiceOptions tunes the requests a Service sends.
type ServiceOptions struct {
	MaxTokens   int
	Temperature *float64
}

// Service creates chat sessions on top of a Client.
type Service struct {
	client Client
	opts   ServiceOptions
	log    *logging.Logger
}

// NewService wraps client as a conversational service.
func NewService(client Client, opts ServiceOptions, log *logging.Logger) *Service {
	return &Service{client: client, opts: opts, log: log.Sub("llm")}
}

// NewServiceFromConfig builds the service for the configured provider and its
// fallbacks. It fails with ErrMissingCredential when the primary provider
// needs a key and credential is blank.
func NewServiceFromConfig(cfg config.Config, credential string, log *logging.Logger) (*Service, error) {
	credential = strings.TrimSpace(credential)
	if NeedsCredential(cfg.Provider) && credential == "" {
		return nil, ErrMissingCredential
	}

	reg := NewRegistryFromConfig(cfg, credential, log)
	if _, ok := reg.Lookup(cfg.Provider); !ok {
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	return NewService(NewFailoverClient(reg, log), ServiceOptions{
		MaxTokens:   cfg.Assistant.MaxTokens,
		Temperature: cfg.Assistant.Temperature,
	}, log), nil
}

// Name returns the underlying provider name.
func (s *Service) Name() string {
	return s.client.Name()
}

// CreateSession starts a conversation bound to one system instruction.
// No network call is made until the first Send.
func (s *Service) CreateSession(systemInstruction string) (*Chat, error) {
	if s.client == nil {
		return nil, errors.New("llm: service has no client")
	}
	return &Chat{service: s, system: systemInstruction}, nil
}

// Chat is one conversation: a fixed system instruction plus the turns
// exchanged so far. Only successful exchanges are kept, so a failed send
// leaves the history as it was.
type Chat struct {
	service *Service
	system  string

	mu      sync.Mutex
	history []Message
}

// Send submits text as the next user turn and returns the assistant reply.
// Calls are serialized.
func (c *Chat) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]Message, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: text})

	resp, err := c.service.client.Complete(ctx, CompletionRequest{
		System:      c.system,
		Messages:    msgs,
		MaxTokens:   c.service.opts.MaxTokens,
		Temperature: c.service.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	c.history = append(msgs, Message{Role: RoleAssistant, Content: resp.Content})
	c.service.log.Debug().
		Str("model", resp.Model).
		Int("turns", len(c.history)/2).
		Int("inputTokens", resp.Usage.InputTokens).
		Int("outputTokens", resp.Usage.OutputTokens).
		Dur("duration", resp.Duration).
		Msg("exchange complete")
	return resp.Content, nil
}

// History returns a copy of the recorded turns.
func (c *Chat) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}
