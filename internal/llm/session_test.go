package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatKeepsHistoryOnSuccess(t *testing.T) {
	fake := &fakeClient{
		name: "fake",
		reply: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			last := req.Messages[len(req.Messages)-1]
			return &CompletionResponse{Content: strings.ToUpper(last.Content)}, nil
		},
	}
	temp := 0.5
	svc := NewService(fake, ServiceOptions{MaxTokens: 300, Temperature: &temp}, silentLog())

	chat, err := svc.CreateSession("system text")
	require.NoError(t, err)
	assert.Empty(t, fake.seen(), "creating a session makes no call")

	reply, err := chat.Send(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, "ONE", reply)

	reply, err = chat.Send(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "TWO", reply)

	reqs := fake.seen()
	require.Len(t, reqs, 2)
	assert.Equal(t, "system text", reqs[1].System)
	assert.Equal(t, 300, reqs[1].MaxTokens)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "ONE"},
		{Role: RoleUser, Content: "two"},
	}, reqs[1].Messages)

	assert.Len(t, chat.History(), 4)
}

func TestChatDropsFailedTurn(t *testing.T) {
	fail := true
	fake := &fakeClient{
		name: "fake",
		reply: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			if fail {
				return nil, errors.New("quota exceeded")
			}
			return &CompletionResponse{Content: "ok"}, nil
		},
	}
	chat, err := NewService(fake, ServiceOptions{}, silentLog()).CreateSession("s")
	require.NoError(t, err)

	_, err = chat.Send(context.Background(), "lost")
	require.EqualError(t, err, "quota exceeded")
	assert.Empty(t, chat.History())

	fail = false
	_, err = chat.Send(context.Background(), "kept")
	require.NoError(t, err)

	reqs := fake.seen()
	assert.Equal(t, []Message{{Role: RoleUser, Content: "kept"}}, reqs[1].Messages)
}

func TestServiceName(t *testing.T) {
	svc := NewService(&fakeClient{name: "gemini"}, ServiceOptions{}, silentLog())
	assert.Equal(t, "gemini", svc.Name())
}

func TestCreateSessionWithoutClient(t *testing.T) {
	svc := &Service{log: silentLog()}
	_, err := svc.CreateSession("s")
	assert.Error(t, err)
}

func TestNewServiceFromConfig(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		_, err := NewServiceFromConfig(config.Defaults(), "  ", silentLog())
		assert.ErrorIs(t, err, ErrMissingCredential)
		assert.Equal(t, "API_KEY environment variable not set.", err.Error())
	})

	t.Run("gemini", func(t *testing.T) {
		svc, err := NewServiceFromConfig(config.Defaults(), "key", silentLog())
		require.NoError(t, err)
		assert.Equal(t, "gemini", svc.Name())
	})

	t.Run("echo needs no key", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Provider = "echo"
		svc, err := NewServiceFromConfig(cfg, "", silentLog())
		require.NoError(t, err)

		chat, err := svc.CreateSession("s")
		require.NoError(t, err)
		reply, err := chat.Send(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, "HELLO", reply)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Provider = "openai"
		_, err := NewServiceFromConfig(cfg, "key", silentLog())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})
}
