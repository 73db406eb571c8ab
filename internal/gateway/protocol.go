// Package gateway exposes the chat controller and the robot flow over HTTP
// and a WebSocket request/response/event protocol.
package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

const (
	EventConnectChallenge = "connect.challenge"
	EventChatState        = "chat.state"
)

// ProtocolVersion is the only protocol revision this server speaks.
const ProtocolVersion = 1

// Read limit per frame, and the outbound buffer a peer should tolerate.
// Both are advertised in HelloOK.
const (
	maxPayloadBytes  = 1 << 20
	maxBufferedBytes = 4 << 20
)

// Frame is the envelope of every WebSocket message. Which fields are set
// depends on Type:
//
//	req    ID, Method, Params
//	res    ID, OK, Payload or Error
//	event  Event, Payload, Seq
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// checkRequest reports why a frame cannot be dispatched as a request.
func (f Frame) checkRequest() *ErrorShape {
	switch {
	case f.Type != FrameTypeRequest:
		return &ErrorShape{Code: CodeProtocol, Message: fmt.Sprintf("unexpected frame type %q", f.Type)}
	case f.ID == "":
		return &ErrorShape{Code: CodeProtocol, Message: "request without id"}
	case f.Method == "":
		return &ErrorShape{Code: CodeProtocol, Message: "request without method"}
	}
	return nil
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ErrorShape) Error() string {
	return e.Code + ": " + e.Message
}

const (
	CodeProtocol       = "protocol_error"
	CodeInvalidParams  = "invalid_params"
	CodeUnauthorized   = "unauthorized"
	CodeMethodNotFound = "method_not_found"
	CodeUnavailable    = "unavailable"
	CodeNotFound       = "not_found"
	CodeNoSelection    = "no_selection"
	CodeInternal       = "internal_error"
)

// ConnectParams open every connection. The server refuses any other first
// request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      PeerInfo     `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Locale      string       `json:"locale,omitempty"`
}

// supports reports whether the peer's protocol range includes ours. A zero
// bound is open.
func (p ConnectParams) supports(version int) bool {
	if p.MinProtocol != 0 && p.MinProtocol > version {
		return false
	}
	return p.MaxProtocol == 0 || p.MaxProtocol >= version
}

// PeerInfo is what a front end says about itself when connecting.
type PeerInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform,omitempty"`
}

type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect. State carries the controller
// snapshot so a new peer can render before the next chat.state event.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
	State    any          `json:"state,omitempty"`
}

type ServerInfo struct {
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	ConnID   string `json:"connId"`
	Provider string `json:"provider,omitempty"`
}

type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type ServerPolicy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
}

func marshalBody(what string, v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", what, err)
	}
	return raw, nil
}

func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := marshalBody(method+" params", params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

func NewResponse(id string, payload any) (Frame, error) {
	raw, err := marshalBody("response", payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &errShape}
}

func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := marshalBody(event, payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

// prepareEvent encodes an event once for writing to many connections.
func prepareEvent(event string, payload any, seq int64) (*websocket.PreparedMessage, error) {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}
