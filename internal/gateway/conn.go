package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/xmlbot/internal/version"
)

const handshakeTimeout = 10 * time.Second

// rejection is a handshake failure the peer is told about before the socket
// closes.
type rejection struct {
	reqID string
	shape ErrorShape
	cause error
}

func (r *rejection) Error() string { return r.cause.Error() }

func reject(reqID, code, message string, cause error) *rejection {
	return &rejection{reqID: reqID, shape: ErrorShape{Code: code, Message: message}, cause: cause}
}

// handleWebSocket upgrades the request and serves the peer until it leaves.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	remote := r.RemoteAddr
	if !s.authLimiter.allow(remote) {
		s.log.Warn().Str("remote", remote).Msg("rate limited after failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	peer, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("handshake failed")
		s.authLimiter.recordFailure(remote)
		if rej, ok := err.(*rejection); ok {
			conn.WriteJSON(NewErrorResponse(rej.reqID, rej.shape))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, rej.shape.Message))
		}
		conn.Close()
		return
	}

	defer func() {
		s.peers.remove(peer.ID)
		peer.Close()
	}()
	s.readLoop(r.Context(), peer)
}

// handshake sends connect.challenge, checks the connect request and answers
// with hello-ok, all within handshakeTimeout.
func (s *Server) handshake(conn *websocket.Conn) (*Peer, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	frame, params, err := readConnect(conn)
	if err != nil {
		return nil, err
	}
	verdict := Authorize(s.auth, params.Auth)
	if !verdict.OK {
		return nil, reject(frame.ID, CodeUnauthorized, verdict.Reason,
			fmt.Errorf("auth failed: %s", verdict.Reason))
	}
	conn.SetReadDeadline(time.Time{})

	peer := newPeer(conn, params.Client, verdict.Method)
	if err := s.admit(peer, frame.ID); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", peer.ID).
		Str("peer", params.Client.ID).
		Str("peerVersion", params.Client.Version).
		Str("authMethod", verdict.Method).
		Msg("peer authenticated")
	return peer, nil
}

// readConnect reads the first frame and insists it is a usable connect
// request.
func readConnect(conn *websocket.Conn) (Frame, ConnectParams, error) {
	var frame Frame
	var params ConnectParams

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return frame, params, fmt.Errorf("reading connect: %w", err)
	}
	if err := json.Unmarshal(msg, &frame); err != nil {
		return frame, params, fmt.Errorf("parsing connect frame: %w", err)
	}

	switch {
	case frame.Type != FrameTypeRequest || frame.Method != "connect":
		return frame, params, reject(frame.ID, CodeProtocol, "expected connect request",
			fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method))
	case json.Unmarshal(frame.Params, &params) != nil:
		return frame, params, reject(frame.ID, CodeInvalidParams, "invalid connect params",
			fmt.Errorf("malformed connect params"))
	case !params.supports(ProtocolVersion):
		return frame, params, reject(frame.ID, CodeProtocol, "unsupported protocol version",
			fmt.Errorf("peer protocol %d..%d not supported", params.MinProtocol, params.MaxProtocol))
	}
	return frame, params, nil
}

// admit joins peer to the broadcast set and answers the connect request with
// hello-ok. The peer's write lock is held throughout: a chat.state broadcast
// racing the handshake waits for hello-ok, then is delivered or skipped by
// sequence, so no state change between the two is lost.
func (s *Server) admit(peer *Peer, reqID string) error {
	peer.mu.Lock()
	defer peer.mu.Unlock()

	s.peers.add(peer)
	resp, err := NewResponse(reqID, s.hello(peer))
	if err == nil {
		err = peer.sendLocked(resp)
	}
	if err != nil {
		s.peers.remove(peer.ID)
	}
	return err
}

// hello builds the hello-ok payload for peer. With a controller attached it
// carries the current snapshot, and peer is marked as having seen every
// broadcast sent so far. The caller holds peer.mu.
func (s *Server) hello(peer *Peer) HelloOK {
	h := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.ShortCommit(),
			ConnID:  peer.ID,
		},
		Features: Features{Methods: s.Methods(), Events: s.Events()},
		Policy:   ServerPolicy{MaxPayload: maxPayloadBytes, MaxBufferedBytes: maxBufferedBytes},
	}
	if s.chat != nil {
		peer.lastState = s.eventSeq.Load()
		h.Server.Provider = s.chat.Provider()
		h.State = s.chat.Snapshot()
	}
	return h
}

// readLoop serves one peer's requests until its connection ends. Handlers
// run on this goroutine; long-running ones answer from their own.
func (s *Server) readLoop(ctx context.Context, peer *Peer) {
	log := s.log.With("connId", peer.ID)
	for {
		frame, err := peer.next()
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			log.Debug().Msg("peer closed connection")
			return
		case err != nil:
			log.Warn().Err(err).Msg("read error")
			return
		case frame.Type != FrameTypeRequest:
			log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		if bad := frame.checkRequest(); bad != nil {
			peer.RespondError(frame.ID, *bad)
			continue
		}
		handler, ok := s.handlers[frame.Method]
		if !ok {
			peer.RespondError(frame.ID, ErrorShape{
				Code:    CodeMethodNotFound,
				Message: "unknown method: " + frame.Method,
			})
			continue
		}
		handler(&RequestContext{Ctx: ctx, Peer: peer, Frame: frame, Server: s})
	}
}
