package gateway

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/xmlbot/internal/chat"
	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/hooks"
	"github.com/soyeahso/xmlbot/internal/logging"
	"github.com/soyeahso/xmlbot/internal/robot"
	"github.com/soyeahso/xmlbot/internal/version"
)

var (
	ErrPeerClosed   = errors.New("peer connection closed")
	ErrAuthNotReady = errors.New("gateway auth has no secret configured")
)

// ChatController is the part of the session controller the gateway drives.
type ChatController interface {
	Snapshot() domain.Snapshot
	Submit(ctx context.Context, text string) (<-chan struct{}, error)
	Subscribe(fn chat.Observer) func()
	Provider() string
}

var _ ChatController = (*chat.Controller)(nil)

// Server is the xmlbot HTTP + WebSocket gateway.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	peers    *peerSet
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	chat   ChatController
	book   *robot.Book
	runner *robot.Runner
	hooks  *hooks.Manager

	unsubscribe func()
	closeOnce   sync.Once

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithChat exposes a session controller through chat.* methods and
// chat.state events.
func WithChat(c ChatController) ServerOption {
	return func(s *Server) {
		s.chat = c
	}
}

// WithRobot exposes the client book and the robot actions.
func WithRobot(book *robot.Book, runner *robot.Runner) ServerOption {
	return func(s *Server) {
		s.book = book
		s.runner = runner
	}
}

// WithHooks sets the hook manager for gateway lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a gateway server. When a chat controller is configured the
// server subscribes to it immediately; Close releases the subscription.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		peers:       newPeerSet(log.Sub("gateway").Sub("peers")),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	if s.chat != nil {
		s.unsubscribe = s.chat.Subscribe(s.broadcastState)
	}
	return s
}

// checkWebSocketOrigin allows requests without an Origin header (non-browser
// clients) and browser requests whose Origin is listed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// Events returns the event names the server may push.
func (s *Server) Events() []string {
	events := []string{EventConnectChallenge}
	if s.chat != nil {
		events = append(events, EventChatState)
	}
	return events
}

// Handler returns the HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return chain(mux, s.middlewares()...)
}

// Start listens for HTTP and WebSocket connections and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if !s.auth.Ready() {
		return fmt.Errorf("%w (mode %s)", ErrAuthNotReady, s.auth.Mode)
	}

	ln, err := listen(s.cfg.Gateway, s.log)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()
	s.log.Info().Str("addr", addr).Str("bind", s.cfg.Gateway.Bind).Str("auth", s.auth.Mode).
		Strs("methods", s.Methods()).Msg("gateway server ready")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": addr})

	go s.authLimiter.run(ctx)
	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// shutdown detaches from the controller, drops every peer and drains HTTP
// within ten seconds.
func (s *Server) shutdown() {
	s.log.Info().Msg("shutting down gateway server")
	s.emit(context.Background(), hooks.EventGatewayStop, nil)
	s.Close()
	s.peers.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

// Close stops forwarding controller snapshots. It is called by Start on
// shutdown and is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// broadcastState pushes a controller snapshot to every connected peer.
func (s *Server) broadcastState(snap domain.Snapshot) {
	seq := s.eventSeq.Add(1)
	n := s.peers.broadcastState(snap, seq)
	s.log.Debug().Int64("seq", seq).Int("peers", n).Str("status", string(snap.Status)).Msg("chat.state pushed")
}
