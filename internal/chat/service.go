package chat

import (
	"context"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/llm"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// Session is one conversation with hidden, remotely held turn history.
type Session interface {
	Send(ctx context.Context, text string) (string, error)
}

// Service creates sessions bound to a system instruction.
type Service interface {
	// Name is the provider name used in error banners.
	Name() string
	CreateSession(systemInstruction string) (Session, error)
}

// Connector builds a Service from the resolved credential.
type Connector func(credential string) (Service, error)

// FromLLM adapts an llm.Service to the controller's Service.
func FromLLM(svc *llm.Service) Service {
	return llmService{svc: svc}
}

type llmService struct {
	svc *llm.Service
}

func (s llmService) Name() string { return s.svc.Name() }

func (s llmService) CreateSession(systemInstruction string) (Session, error) {
	chat, err := s.svc.CreateSession(systemInstruction)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// ConfigConnector returns a Connector that builds the provider stack
// described by cfg.
func ConfigConnector(cfg config.Config, log *logging.Logger) Connector {
	return func(credential string) (Service, error) {
		svc, err := llm.NewServiceFromConfig(cfg, credential, log)
		if err != nil {
			return nil, err
		}
		return FromLLM(svc), nil
	}
}
