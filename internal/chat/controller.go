// Package chat implements the session controller: the single owner of the
// visible conversation, the assistant session handle, the request status and
// the last error shown to the user.
//
// The controller allows at most one exchange in flight. A send attempted
// while one is pending is dropped, not queued.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/hooks"
	"github.com/soyeahso/xmlbot/internal/llm"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// Rejections returned by SendMessage. None of them changes controller state.
var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrBusy           = errors.New("chat: a response is still pending")
	ErrNotInitialized = errors.New("chat: session not initialized")
)

var errEmptyReply = errors.New("empty response")

// Options configures a Controller.
type Options struct {
	// Credential returns the provider API key. A nil Credential means the
	// provider needs none; a non-nil one returning blank fails Initialize.
	Credential func() string
	Connect    Connector

	// Texts; empty values select the package defaults.
	SystemInstruction string
	Greeting          string
	Fallback          string

	Hooks *hooks.Manager
	Log   *logging.Logger
}

// Observer receives a snapshot after every state transition.
type Observer func(domain.Snapshot)

// Controller is the session controller. It is safe for concurrent use.
type Controller struct {
	opts Options
	log  *logging.Logger

	initOnce sync.Once
	initErr  error

	mu        sync.Mutex
	messages  []domain.Message
	status    domain.Status
	lastError string
	session   Session
	provider  string
	pending   []string // notices held back while a reply is pending

	// notifyMu keeps observer deliveries in state order.
	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewController creates an uninitialized controller.
func NewController(opts Options) *Controller {
	if opts.SystemInstruction == "" {
		opts.SystemInstruction = SystemInstruction
	}
	if opts.Greeting == "" {
		opts.Greeting = Greeting
	}
	if opts.Fallback == "" {
		opts.Fallback = Fallback
	}
	if opts.Log == nil {
		opts.Log = logging.New(nil, "silent")
	}
	return &Controller{
		opts:      opts,
		log:       opts.Log.Sub("chat"),
		status:    domain.StatusUninitialized,
		observers: make(map[int]Observer),
	}
}

// Initialize creates the assistant session and posts the greeting. It runs
// once; later calls return the first result without touching state. A
// failure is terminal for this controller.
func (c *Controller) Initialize() error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize()
	})
	return c.initErr
}

func (c *Controller) initialize() error {
	session, provider, err := c.connect()

	c.mu.Lock()
	if err != nil {
		c.lastError = err.Error()
		c.log.Error().Err(err).Msg("chat initialization failed")
	} else {
		c.session = session
		c.provider = provider
		c.messages = []domain.Message{domain.AssistantMessage(c.opts.Greeting)}
		c.status = domain.StatusIdle
		c.lastError = ""
		c.log.Info().Str("provider", provider).Msg("chat session ready")
	}
	c.publishLocked()
	return err
}

func (c *Controller) connect() (s Session, provider string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("session construction panicked: %v", r)
		}
	}()

	credential := ""
	if c.opts.Credential != nil {
		credential = strings.TrimSpace(c.opts.Credential())
		if credential == "" {
			return nil, "", errors.New(MissingCredentialMessage)
		}
	}
	if c.opts.Connect == nil {
		return nil, "", errors.New("no conversational service configured")
	}

	svc, err := c.opts.Connect(credential)
	if err != nil {
		return nil, "", err
	}
	session, err := svc.CreateSession(c.opts.SystemInstruction)
	if err != nil {
		return nil, "", err
	}
	if session == nil {
		return nil, "", errors.New("conversational service returned no session")
	}
	return session, svc.Name(), nil
}

// SendMessage submits text as the next user turn and blocks until the reply
// (or the fallback) has been appended. It rejects like Submit. Once accepted
// the call returns nil even if the exchange failed; the failure is reported
// through the snapshot's LastError.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	done, err := c.Submit(ctx, text)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// Submit appends text as the next user turn and starts the exchange in the
// background. Blank text, a pending exchange or a missing session reject the
// call with ErrEmptyMessage, ErrBusy or ErrNotInitialized and leave state
// untouched. The returned channel is closed once the reply or the fallback
// has been appended.
func (c *Controller) Submit(ctx context.Context, text string) (<-chan struct{}, error) {
	c.mu.Lock()
	switch {
	case strings.TrimSpace(text) == "":
		c.mu.Unlock()
		return nil, ErrEmptyMessage
	case c.status == domain.StatusAwaitingResponse:
		c.mu.Unlock()
		c.log.Debug().Msg("send dropped, reply pending")
		return nil, ErrBusy
	case c.status == domain.StatusUninitialized || c.session == nil:
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}

	session := c.session
	provider := c.provider
	c.messages = append(c.messages, domain.UserMessage(text))
	c.status = domain.StatusAwaitingResponse
	c.lastError = ""
	c.publishLocked()

	c.emit(ctx, hooks.EventMessageReceived, map[string]any{"content": text})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.complete(ctx, session, provider, text)
	}()
	return done, nil
}

// complete runs one exchange and appends its outcome, then any notices held
// back meanwhile.
func (c *Controller) complete(ctx context.Context, session Session, provider, text string) {
	reply, err := c.exchange(ctx, session, text)

	c.mu.Lock()
	if err != nil {
		c.lastError = fmt.Sprintf(exchangeErrorFormat, llm.DisplayName(provider), err.Error())
		c.messages = append(c.messages, domain.AssistantMessage(c.opts.Fallback))
		c.log.Warn().Err(err).Str("provider", provider).Msg("exchange failed")
	} else {
		c.messages = append(c.messages, domain.AssistantMessage(reply))
	}
	c.status = domain.StatusIdle
	for _, notice := range c.pending {
		c.messages = append(c.messages, domain.AssistantMessage(notice))
	}
	c.pending = nil
	c.publishLocked()

	if err != nil {
		c.emit(ctx, hooks.EventExchangeFailed, map[string]any{"content": text, "error": err.Error()})
	} else {
		c.emit(ctx, hooks.EventMessageSending, map[string]any{"content": reply})
	}
}

// exchange calls the session, converting a panic or an empty reply into an
// ordinary failure.
func (c *Controller) exchange(ctx context.Context, s Session, text string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = "", fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	reply, err = s.Send(ctx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errEmptyReply
	}
	return reply, err
}

// AppendNotice appends a log-style assistant message on behalf of the robot
// flow. While a reply is pending the notice is held back and appended right
// after it. Blank notices are ignored.
func (c *Controller) AppendNotice(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	if c.status == domain.StatusAwaitingResponse {
		c.pending = append(c.pending, text)
		c.mu.Unlock()
		return
	}
	c.messages = append(c.messages, domain.AssistantMessage(text))
	c.publishLocked()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Provider returns the provider name of the live session, or "" before a
// successful Initialize.
func (c *Controller) Provider() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// Subscribe registers fn to receive a snapshot after every state transition.
// Deliveries are serialized and arrive in state order. fn must not call
// Initialize, SendMessage or AppendNotice synchronously. The returned func
// removes the observer.
func (c *Controller) Subscribe(fn Observer) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	msgs := make([]domain.Message, len(c.messages))
	copy(msgs, c.messages)
	return domain.Snapshot{
		Messages:  msgs,
		Status:    c.status,
		Loading:   c.status == domain.StatusAwaitingResponse,
		LastError: c.lastError,
	}
}

// publishLocked takes a snapshot, releases c.mu and delivers the snapshot to
// observers. It must be called with c.mu held.
func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	c.obsMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.obsMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (c *Controller) emit(ctx context.Context, event string, data map[string]any) {
	if c.opts.Hooks == nil {
		return
	}
	c.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
}
