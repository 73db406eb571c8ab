package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/hooks"
	"github.com/soyeahso/xmlbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// stubService hands out a single stubSession.
type stubService struct {
	name      string
	session   *stubSession
	createErr error
	systems   []string
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) CreateSession(system string) (Session, error) {
	s.systems = append(s.systems, system)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.session, nil
}

type stubSession struct {
	send func(ctx context.Context, text string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubSession) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	return s.send(ctx, text)
}

func (s *stubSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func upper(_ context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func newTestController(t *testing.T, send func(context.Context, string) (string, error)) (*Controller, *stubService) {
	t.Helper()
	svc := &stubService{name: "gemini", session: &stubSession{send: send}}
	c := NewController(Options{
		Credential: func() string { return "test-key" },
		Connect:    func(string) (Service, error) { return svc, nil },
		Log:        silentLog(),
	})
	require.NoError(t, c.Initialize())
	return c, svc
}

func TestInitializePostsGreeting(t *testing.T) {
	c, svc := newTestController(t, upper)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, snap.Messages[0].Role)
	assert.Equal(t, Greeting, snap.Messages[0].Content)
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, []string{SystemInstruction}, svc.systems)
	assert.Equal(t, "gemini", c.Provider())
}

func TestInitializeRunsOnce(t *testing.T) {
	connects := 0
	svc := &stubService{name: "gemini", session: &stubSession{send: upper}}
	c := NewController(Options{
		Credential: func() string { return "k" },
		Connect: func(string) (Service, error) {
			connects++
			return svc, nil
		},
	})

	require.NoError(t, c.Initialize())
	require.NoError(t, c.SendMessage(context.Background(), "hi"))
	require.NoError(t, c.Initialize())

	assert.Equal(t, 1, connects)
	assert.Len(t, c.Snapshot().Messages, 3, "second Initialize must not reset the log")
}

func TestInitializePassesCredential(t *testing.T) {
	var got string
	c := NewController(Options{
		Credential: func() string { return "  secret \n" },
		Connect: func(cred string) (Service, error) {
			got = cred
			return &stubService{name: "gemini", session: &stubSession{send: upper}}, nil
		},
	})
	require.NoError(t, c.Initialize())
	assert.Equal(t, "secret", got)
}

func TestInitializeMissingCredential(t *testing.T) {
	connected := false
	c := NewController(Options{
		Credential: func() string { return "   " },
		Connect: func(string) (Service, error) {
			connected = true
			return nil, nil
		},
	})

	err := c.Initialize()
	require.EqualError(t, err, MissingCredentialMessage)
	assert.False(t, connected)

	snap := c.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, domain.StatusUninitialized, snap.Status)
	assert.Equal(t, "API_KEY environment variable not set.", snap.LastError)

	// Every later send is a no-op, forever.
	for _, text := range []string{"hello", "again", "   "} {
		assert.Error(t, c.SendMessage(context.Background(), text))
	}
	assert.ErrorIs(t, c.SendMessage(context.Background(), "hello"), ErrNotInitialized)
	assert.Equal(t, snap, c.Snapshot())

	// No retry path.
	assert.Equal(t, err, c.Initialize())
	assert.Equal(t, snap, c.Snapshot())
}

func TestInitializeSessionConstructionFailure(t *testing.T) {
	c := NewController(Options{
		Credential: func() string { return "k" },
		Connect: func(string) (Service, error) {
			return &stubService{name: "gemini", createErr: errors.New("invalid model")}, nil
		},
	})

	require.Error(t, c.Initialize())
	snap := c.Snapshot()
	assert.Equal(t, "invalid model", snap.LastError)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, domain.StatusUninitialized, snap.Status)
}

func TestInitializeConnectFailureAndPanic(t *testing.T) {
	c := NewController(Options{
		Connect: func(string) (Service, error) { return nil, errors.New("unsupported provider") },
	})
	require.Error(t, c.Initialize())
	assert.Equal(t, "unsupported provider", c.Snapshot().LastError)

	p := NewController(Options{
		Connect: func(string) (Service, error) { panic("boom") },
	})
	err := p.Initialize()
	require.Error(t, err)
	assert.Contains(t, p.Snapshot().LastError, "boom")
	assert.Equal(t, domain.StatusUninitialized, p.Snapshot().Status)
}

func TestInitializeWithoutConnector(t *testing.T) {
	c := NewController(Options{})
	require.Error(t, c.Initialize())
	assert.Equal(t, domain.StatusUninitialized, c.Snapshot().Status)
}

func TestNilCredentialFuncSkipsCheck(t *testing.T) {
	c := NewController(Options{
		Connect: func(cred string) (Service, error) {
			assert.Empty(t, cred)
			return &stubService{name: "echo", session: &stubSession{send: upper}}, nil
		},
	})
	require.NoError(t, c.Initialize())
	assert.Equal(t, domain.StatusIdle, c.Snapshot().Status)
}

func TestSendMessageEmptyInputIsNoop(t *testing.T) {
	c, svc := newTestController(t, upper)

	// Leave a populated LastError in place to prove it is not cleared.
	c.mu.Lock()
	c.lastError = "previous failure"
	c.mu.Unlock()

	before := c.Snapshot()
	for _, text := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, c.SendMessage(context.Background(), text), ErrEmptyMessage)
	}
	assert.Equal(t, before, c.Snapshot())
	assert.Empty(t, svc.session.Calls())
}

func TestSendMessageSuccess(t *testing.T) {
	c, svc := newTestController(t, upper)

	require.NoError(t, c.SendMessage(context.Background(), "hello"))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, domain.RoleUser, snap.Messages[1].Role)
	assert.Equal(t, "hello", snap.Messages[1].Content)
	assert.Equal(t, domain.RoleAssistant, snap.Messages[2].Role)
	assert.Equal(t, "HELLO", snap.Messages[2].Content)
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, []string{"hello"}, svc.session.Calls())
}

func TestSendMessageFailureFallback(t *testing.T) {
	c, _ := newTestController(t, func(context.Context, string) (string, error) {
		return "", errors.New("quota exceeded")
	})

	require.NoError(t, c.SendMessage(context.Background(), "hello"))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, domain.UserMessage("hello").Content, snap.Messages[1].Content)
	assert.Equal(t, domain.RoleAssistant, snap.Messages[2].Role)
	assert.Equal(t, Fallback, snap.Messages[2].Content)
	assert.Contains(t, snap.LastError, "quota exceeded")
	assert.Equal(t, "Failed to get response from Gemini. quota exceeded", snap.LastError)
	assert.Equal(t, domain.StatusIdle, snap.Status)
}

func TestSendMessageClearsLastErrorOnNextSend(t *testing.T) {
	fail := true
	c, _ := newTestController(t, func(_ context.Context, text string) (string, error) {
		if fail {
			return "", errors.New("network down")
		}
		return "ok", nil
	})

	require.NoError(t, c.SendMessage(context.Background(), "one"))
	require.NotEmpty(t, c.Snapshot().LastError)

	fail = false
	require.NoError(t, c.SendMessage(context.Background(), "two"))
	snap := c.Snapshot()
	assert.Empty(t, snap.LastError)
	assert.Len(t, snap.Messages, 5, "the failed exchange stays in the transcript")
}

func TestSendMessageConcurrentSendIsDropped(t *testing.T) {
	release := make(chan struct{})
	c, svc := newTestController(t, func(_ context.Context, text string) (string, error) {
		<-release
		return strings.ToUpper(text), nil
	})

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "a") }()

	require.Eventually(t, func() bool {
		return c.Snapshot().Status == domain.StatusAwaitingResponse
	}, 2*time.Second, 5*time.Millisecond)

	snap := c.Snapshot()
	assert.True(t, snap.Loading)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "a", snap.Messages[1].Content)

	assert.ErrorIs(t, c.SendMessage(context.Background(), "b"), ErrBusy)
	assert.Equal(t, snap, c.Snapshot(), "dropped send leaves state untouched")

	close(release)
	require.NoError(t, <-done)

	final := c.Snapshot()
	require.Len(t, final.Messages, 3)
	assert.Equal(t, "A", final.Messages[2].Content)
	assert.Equal(t, domain.StatusIdle, final.Status)
	assert.Equal(t, []string{"a"}, svc.session.Calls())
}

func TestSubmitRejectsSecondSendImmediately(t *testing.T) {
	release := make(chan struct{})
	c, svc := newTestController(t, func(_ context.Context, text string) (string, error) {
		<-release
		return strings.ToUpper(text), nil
	})

	done, err := c.Submit(context.Background(), "a")
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, domain.StatusAwaitingResponse, snap.Status, "the user turn is recorded before Submit returns")
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "a", snap.Messages[1].Content)

	second, err := c.Submit(context.Background(), "b")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, second)

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("exchange did not complete")
	}

	final := c.Snapshot()
	require.Len(t, final.Messages, 3)
	assert.Equal(t, "A", final.Messages[2].Content)
	assert.Equal(t, []string{"a"}, svc.session.Calls())
}

func TestSubmitRejections(t *testing.T) {
	c, _ := newTestController(t, upper)
	_, err := c.Submit(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	uninit := NewController(Options{Log: silentLog()})
	_, err = uninit.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, uninit.Snapshot().Messages)
}

func TestSendMessageRecoversPanic(t *testing.T) {
	c, _ := newTestController(t, func(context.Context, string) (string, error) {
		panic("decoder exploded")
	})

	require.NotPanics(t, func() {
		require.NoError(t, c.SendMessage(context.Background(), "hello"))
	})

	snap := c.Snapshot()
	assert.Equal(t, Fallback, snap.Messages[len(snap.Messages)-1].Content)
	assert.Contains(t, snap.LastError, "decoder exploded")
	assert.Equal(t, domain.StatusIdle, snap.Status)
}

func TestSendMessageEmptyReplyIsFailure(t *testing.T) {
	c, _ := newTestController(t, func(context.Context, string) (string, error) {
		return "  ", nil
	})

	require.NoError(t, c.SendMessage(context.Background(), "hello"))
	snap := c.Snapshot()
	assert.Equal(t, Fallback, snap.Messages[2].Content)
	assert.Contains(t, snap.LastError, "empty response")
}

func TestSendMessageContextCancelledIsFailure(t *testing.T) {
	c, _ := newTestController(t, func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.SendMessage(ctx, "hello"))
	assert.Contains(t, c.Snapshot().LastError, "context canceled")
}

func TestEveryUserMessageGetsExactlyOneReply(t *testing.T) {
	n := 0
	c, _ := newTestController(t, func(_ context.Context, text string) (string, error) {
		n++
		if n%2 == 0 {
			return "", errors.New("flaky")
		}
		return text + "!", nil
	})

	for _, text := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.SendMessage(context.Background(), text))
	}

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 9)
	for i := 1; i < len(msgs); i += 2 {
		assert.Equal(t, domain.RoleUser, msgs[i].Role)
		assert.Equal(t, domain.RoleAssistant, msgs[i+1].Role)
	}
}

func TestCustomTexts(t *testing.T) {
	svc := &stubService{name: "claude", session: &stubSession{send: func(context.Context, string) (string, error) {
		return "", errors.New("overloaded")
	}}}
	c := NewController(Options{
		Connect:           func(string) (Service, error) { return svc, nil },
		SystemInstruction: "custom persona",
		Greeting:          "Hi!",
		Fallback:          "Sorry.",
	})
	require.NoError(t, c.Initialize())
	require.NoError(t, c.SendMessage(context.Background(), "x"))

	snap := c.Snapshot()
	assert.Equal(t, []string{"custom persona"}, svc.systems)
	assert.Equal(t, "Hi!", snap.Messages[0].Content)
	assert.Equal(t, "Sorry.", snap.Messages[2].Content)
	assert.Equal(t, "Failed to get response from Claude. overloaded", snap.LastError)
}

func TestAppendNotice(t *testing.T) {
	c, _ := newTestController(t, upper)

	c.AppendNotice("2 novos XMLs encontrados")
	c.AppendNotice("   ")

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "2 novos XMLs encontrados", snap.Messages[1].Content)
}

func TestAppendNoticeWaitsForPendingReply(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestController(t, func(_ context.Context, text string) (string, error) {
		<-release
		return "reply", nil
	})

	done := make(chan error, 1)
	go func() { done <- c.SendMessage(context.Background(), "question") }()
	require.Eventually(t, func() bool { return c.Snapshot().Loading }, 2*time.Second, 5*time.Millisecond)

	c.AppendNotice("download concluído")
	assert.Len(t, c.Snapshot().Messages, 2, "notice is held back while loading")

	close(release)
	require.NoError(t, <-done)

	msgs := c.Snapshot().Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "question", msgs[1].Content)
	assert.Equal(t, "reply", msgs[2].Content)
	assert.Equal(t, "download concluído", msgs[3].Content)
}

func TestSnapshotIsACopy(t *testing.T) {
	c, _ := newTestController(t, upper)

	snap := c.Snapshot()
	snap.Messages[0].Content = "tampered"
	snap.Messages = append(snap.Messages, domain.UserMessage("injected"))

	fresh := c.Snapshot()
	assert.Len(t, fresh.Messages, 1)
	assert.Equal(t, Greeting, fresh.Messages[0].Content)
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	svc := &stubService{name: "gemini", session: &stubSession{send: upper}}
	c := NewController(Options{
		Connect: func(string) (Service, error) { return svc, nil },
	})

	var mu sync.Mutex
	var statuses []domain.Status
	unsubscribe := c.Subscribe(func(s domain.Snapshot) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	require.NoError(t, c.Initialize())
	require.NoError(t, c.SendMessage(context.Background(), "hi"))
	c.AppendNotice("note")

	unsubscribe()
	c.AppendNotice("unseen")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.Status{
		domain.StatusIdle,
		domain.StatusAwaitingResponse,
		domain.StatusIdle,
		domain.StatusIdle,
	}, statuses)
}

func TestSubscribeSeesFailedInitialize(t *testing.T) {
	c := NewController(Options{Credential: func() string { return "" }, Connect: func(string) (Service, error) { return nil, nil }})

	var got domain.Snapshot
	c.Subscribe(func(s domain.Snapshot) { got = s })
	require.Error(t, c.Initialize())
	assert.Equal(t, MissingCredentialMessage, got.LastError)
}

func TestHooksEmitted(t *testing.T) {
	mgr := hooks.NewManager(silentLog())

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]any{}
	record := func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		seen[p.Event] = p.Data["content"]
		mu.Unlock()
		wg.Done()
		return nil
	}
	mgr.On(hooks.EventMessageReceived, "test", record)
	mgr.On(hooks.EventMessageSending, "test", record)
	mgr.On(hooks.EventExchangeFailed, "test", record)

	fail := false
	svc := &stubService{name: "gemini", session: &stubSession{send: func(_ context.Context, text string) (string, error) {
		if fail {
			return "", errors.New("down")
		}
		return strings.ToUpper(text), nil
	}}}
	c := NewController(Options{Connect: func(string) (Service, error) { return svc, nil }, Hooks: mgr})
	require.NoError(t, c.Initialize())

	wg.Add(2)
	require.NoError(t, c.SendMessage(context.Background(), "hi"))
	wg.Wait()

	fail = true
	wg.Add(2)
	require.NoError(t, c.SendMessage(context.Background(), "again"))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "again", seen[hooks.EventMessageReceived])
	assert.Equal(t, "HI", seen[hooks.EventMessageSending])
	assert.Equal(t, "again", seen[hooks.EventExchangeFailed])
}

func TestConfigConnectorEcho(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider = "echo"

	c := NewController(Options{
		Connect: ConfigConnector(cfg, silentLog()),
		Log:     silentLog(),
	})
	require.NoError(t, c.Initialize())
	require.NoError(t, c.SendMessage(context.Background(), "hello"))

	snap := c.Snapshot()
	assert.Equal(t, "HELLO", snap.Messages[2].Content)
	assert.Equal(t, "echo", c.Provider())
}

func TestConfigConnectorMissingKey(t *testing.T) {
	c := NewController(Options{
		Credential: func() string { return "" },
		Connect:    ConfigConnector(config.Defaults(), silentLog()),
	})
	require.Error(t, c.Initialize())
	assert.Equal(t, MissingCredentialMessage, c.Snapshot().LastError)
}

func TestUnreachableProviderKeepsKeyOutOfLastError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	cfg := config.Defaults()
	cfg.APIEndpoint = endpoint

	c := NewController(Options{
		Credential: func() string { return "SUPERSECRETKEY" },
		Connect:    ConfigConnector(cfg, silentLog()),
		Log:        silentLog(),
	})
	require.NoError(t, c.Initialize())
	require.NoError(t, c.SendMessage(context.Background(), "oi"))

	snap := c.Snapshot()
	require.NotEmpty(t, snap.LastError)
	assert.Contains(t, snap.LastError, "gemini request failed")
	assert.NotContains(t, snap.LastError, "SUPERSECRETKEY")
	assert.Equal(t, Fallback, snap.Messages[2].Content)
}
