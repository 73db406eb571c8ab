package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler fills the rest.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Peers    int    `json:"peers,omitempty"`
	Provider string `json:"provider,omitempty"`
	Chat     string `json:"chat,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleState serves the current controller snapshot, read-only, to callers
// presenting the gateway token or password as a bearer credential.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeHTTP(w, r) {
		return
	}
	if s.chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chat not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.chat.Snapshot())
}

// authorizeHTTP checks the Authorization header against the gateway auth and
// answers 401 or 429 itself when the request may not proceed. Failures count
// towards the same per-host limit as failed handshakes.
func (s *Server) authorizeHTTP(w http.ResponseWriter, r *http.Request) bool {
	if !s.authLimiter.allow(r.RemoteAddr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return false
	}
	secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		secret = ""
	}
	verdict := Authorize(s.auth, &ConnectAuth{Token: secret, Password: secret})
	if verdict.OK {
		return true
	}
	s.authLimiter.recordFailure(r.RemoteAddr)
	w.Header().Set("WWW-Authenticate", `Bearer realm="xmlbot"`)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "reason": verdict.Reason})
	return false
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes one RPC request from a peer.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs. Ctx is cancelled when
// the peer's connection ends.
type RequestContext struct {
	Ctx    context.Context
	Peer   *Peer
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Peer.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Peer.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message}); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params unmarshals the request params into target. Missing params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 || string(rc.Frame.Params) == "null" {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
