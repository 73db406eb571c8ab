// Package hooks dispatches xmlbot lifecycle events to in-process handlers and
// to shell commands bound in the config file.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/xmlbot/internal/logging"
)

// Event names.
const (
	EventMessageReceived = "message_received" // user message accepted by the controller
	EventMessageSending  = "message_sending"  // assistant reply appended
	EventExchangeFailed  = "exchange_failed"
	EventRobotAction     = "robot_action" // check or download finished
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists every event in the order they are documented.
var AllEvents = []string{
	EventMessageReceived,
	EventMessageSending,
	EventExchangeFailed,
	EventRobotAction,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload is what a handler receives. Command hooks get it as JSON on stdin.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. An error or a panic is logged and never
// reaches the emitter.
type Handler func(ctx context.Context, p Payload) error

type binding struct {
	name string
	fn   Handler
}

// Manager holds the handlers bound to each event.
type Manager struct {
	mu       sync.RWMutex
	bindings map[string][]binding
	inflight sync.WaitGroup
	log      *logging.Logger
	now      func() time.Time
}

// NewManager returns an empty Manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		bindings: make(map[string][]binding),
		log:      log.Sub("hooks"),
		now:      time.Now,
	}
}

// On binds handler to event under name. Names only label log lines; the
// same name may be bound more than once.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	m.bindings[event] = append(m.bindings[event], binding{name: name, fn: handler})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook bound")
}

// Count returns how many handlers are bound to event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bindings[event])
}

// Emit runs the handlers for event one after another, in binding order, and
// returns when the last one is done.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	bound, p := m.prepare(event, data)
	for _, b := range bound {
		m.call(ctx, b, p)
	}
}

// EmitAsync starts every handler for event in its own goroutine and returns
// at once. Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	bound, p := m.prepare(event, data)
	for _, b := range bound {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.call(ctx, b, p)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned, or
// until timeout elapses. It reports whether all of them finished.
func (m *Manager) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		m.log.Warn().Dur("timeout", timeout).Msg("hooks still running")
		return false
	}
}

func (m *Manager) prepare(event string, data map[string]any) ([]binding, Payload) {
	m.mu.RLock()
	bound := append([]binding(nil), m.bindings[event]...)
	m.mu.RUnlock()
	return bound, Payload{Event: event, At: m.now().UTC(), Data: data}
}

func (m *Manager) call(ctx context.Context, b binding, p Payload) {
	start := m.now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return b.fn(ctx, p)
	}()

	if err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", b.name).
			Msg("hook failed")
		return
	}
	m.log.Debug().
		Str("event", p.Event).
		Str("handler", b.name).
		Dur("took", m.now().Sub(start)).
		Msg("hook done")
}
