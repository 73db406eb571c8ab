package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/soyeahso/xmlbot/internal/chat"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/robot"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers registers the methods backed by configured components.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)

	if s.chat != nil {
		s.Handle("chat.state", s.rpcChatState)
		s.Handle("chat.send", s.rpcChatSend)
	}
	if s.book != nil {
		s.Handle("clients.list", s.rpcClientsList)
		s.Handle("clients.add", s.rpcClientsAdd)
		s.Handle("clients.select", s.rpcClientsSelect)
		s.Handle("clients.selectAll", s.rpcClientsSelectAll)
		s.Handle("clients.remove", s.rpcClientsRemove)
	}
	if s.runner != nil && s.book != nil {
		s.Handle("robot.check", s.rpcRobotAction(robot.ActionCheck))
		s.Handle("robot.download", s.rpcRobotAction(robot.ActionDownload))
	}
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Peers:   s.peers.count(),
	}
	if !s.startedAt.IsZero() {
		resp.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	if s.chat != nil {
		resp.Provider = s.chat.Provider()
		resp.Chat = string(s.chat.Snapshot().Status)
	}
	rc.Respond(resp)
}

func (s *Server) rpcChatState(rc *RequestContext) {
	rc.Respond(s.chat.Snapshot())
}

type chatSendParams struct {
	Message string `json:"message"`
}

// ChatSendResult acknowledges chat.send. The reply itself arrives through
// chat.state events.
type ChatSendResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// rpcChatSend submits on the read loop, so two sends on one connection are
// judged in order. The exchange outlives the connection that asked for it.
func (s *Server) rpcChatSend(rc *RequestContext) {
	var p chatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	_, err := s.chat.Submit(context.WithoutCancel(rc.Ctx), p.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		rc.RespondError(CodeInvalidParams, "message is required")
	case errors.Is(err, chat.ErrBusy):
		rc.Respond(ChatSendResult{Reason: "busy"})
	case errors.Is(err, chat.ErrNotInitialized):
		msg := s.chat.Snapshot().LastError
		if msg == "" {
			msg = "chat session not initialized"
		}
		rc.RespondError(CodeUnavailable, msg)
	case err != nil:
		rc.RespondError(CodeInternal, err.Error())
	default:
		rc.Respond(ChatSendResult{Accepted: true})
	}
}

// ClientView is a registered client plus its selection state.
type ClientView struct {
	domain.Client
	Selected bool `json:"selected"`
}

// ClientsListResult is the payload of clients.list and the selection methods.
type ClientsListResult struct {
	Clients     []ClientView `json:"clients"`
	AllSelected bool         `json:"allSelected"`
}

func (s *Server) clientsList() ClientsListResult {
	list := s.book.List()
	views := make([]ClientView, len(list))
	for i, c := range list {
		views[i] = ClientView{Client: c, Selected: s.book.IsSelected(c.ID)}
	}
	return ClientsListResult{Clients: views, AllSelected: s.book.AllSelected()}
}

func (s *Server) rpcClientsList(rc *RequestContext) {
	rc.Respond(s.clientsList())
}

func (s *Server) rpcClientsAdd(rc *RequestContext) {
	var reg robot.Registration
	if err := rc.Params(&reg); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	client, err := s.book.Register(rc.Ctx, reg)
	switch {
	case errors.Is(err, robot.ErrIncompleteRegistration),
		errors.Is(err, robot.ErrInvalidClientType),
		errors.Is(err, robot.ErrInvalidCertificate):
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	case err != nil:
		rc.RespondError(CodeInternal, err.Error())
		return
	}
	rc.Respond(ClientView{Client: client})
}

type clientsSelectParams struct {
	ID       string `json:"id"`
	Selected bool   `json:"selected"`
}

func (s *Server) rpcClientsSelect(rc *RequestContext) {
	var p clientsSelectParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.ID == "" {
		rc.RespondError(CodeInvalidParams, "id is required")
		return
	}
	if err := s.book.Select(p.ID, p.Selected); err != nil {
		rc.RespondError(CodeNotFound, err.Error())
		return
	}
	rc.Respond(s.clientsList())
}

type clientsRemoveParams struct {
	ID string `json:"id"`
}

func (s *Server) rpcClientsRemove(rc *RequestContext) {
	var p clientsRemoveParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	switch err := s.book.Remove(rc.Ctx, p.ID); {
	case errors.Is(err, robot.ErrUnknownClient):
		rc.RespondError(CodeNotFound, err.Error())
	case err != nil:
		rc.RespondError(CodeInternal, err.Error())
	default:
		rc.Respond(s.clientsList())
	}
}

type clientsSelectAllParams struct {
	Selected bool `json:"selected"`
}

func (s *Server) rpcClientsSelectAll(rc *RequestContext) {
	var p clientsSelectAllParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	s.book.SelectAll(p.Selected)
	rc.Respond(s.clientsList())
}

// rpcRobotAction runs a simulated action off the read loop and responds with
// its Result once the delay has elapsed. The notice also reaches every
// client through chat.state.
func (s *Server) rpcRobotAction(action robot.Action) RequestHandler {
	run := s.runner.Check
	if action == robot.ActionDownload {
		run = s.runner.Download
	}
	return func(rc *RequestContext) {
		if !s.book.AnySelected() {
			rc.RespondError(CodeNoSelection, robot.ErrNoSelection.Error())
			return
		}
		go func() {
			res, err := run(rc.Ctx)
			switch {
			case errors.Is(err, robot.ErrNoSelection):
				rc.RespondError(CodeNoSelection, err.Error())
			case err != nil:
				rc.RespondError(CodeInternal, err.Error())
			default:
				rc.Respond(res)
			}
		}()
	}
}
