package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// writeWait bounds a single frame write so one stalled front end cannot hold
// up a chat.state broadcast.
const writeWait = 10 * time.Second

// Peer is a front end connected over WebSocket that completed the connect
// handshake. Robot clients live in the client book; a peer is the UI that
// drives them.
type Peer struct {
	ID     string
	Info   PeerInfo
	Method string
	Since  time.Time

	conn *websocket.Conn

	mu        sync.Mutex
	closed    bool
	lastState int64
}

func newPeer(conn *websocket.Conn, info PeerInfo, method string) *Peer {
	return &Peer{
		ID:     uuid.NewString(),
		Info:   info,
		Method: method,
		Since:  time.Now(),
		conn:   conn,
	}
}

// Send writes one frame. Safe for concurrent use.
func (p *Peer) Send(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendLocked(frame)
}

func (p *Peer) sendLocked(frame Frame) error {
	if p.closed {
		return ErrPeerClosed
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(frame)
}

// Respond answers request reqID with payload.
func (p *Peer) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return p.Send(f)
}

// RespondError answers request reqID with an error body.
func (p *Peer) RespondError(reqID string, errShape ErrorShape) error {
	return p.Send(NewErrorResponse(reqID, errShape))
}

// pushState writes an already encoded chat.state event. Events carrying a
// sequence at or below the last one delivered are skipped, so a peer never
// sees the transcript go backwards.
func (p *Peer) pushState(seq int64, msg *websocket.PreparedMessage) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrPeerClosed
	}
	if seq <= p.lastState {
		return false, nil
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.conn.WritePreparedMessage(msg); err != nil {
		return false, err
	}
	p.lastState = seq
	return true, nil
}

// next blocks for the next frame. Only the peer's read loop calls it.
func (p *Peer) next() (Frame, error) {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection. Later sends return ErrPeerClosed.
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// peerSet tracks the connected front ends.
type peerSet struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	log   *logging.Logger
}

func newPeerSet(log *logging.Logger) *peerSet {
	return &peerSet{peers: make(map[string]*Peer), log: log}
}

func (ps *peerSet) add(p *Peer) {
	ps.mu.Lock()
	ps.peers[p.ID] = p
	ps.mu.Unlock()
	ps.log.Info().Str("connId", p.ID).Str("peer", p.Info.ID).Msg("peer connected")
}

func (ps *peerSet) remove(id string) {
	ps.mu.Lock()
	_, ok := ps.peers[id]
	delete(ps.peers, id)
	ps.mu.Unlock()
	if ok {
		ps.log.Info().Str("connId", id).Msg("peer disconnected")
	}
}

func (ps *peerSet) count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

func (ps *peerSet) list() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]*Peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		out = append(out, p)
	}
	return out
}

// broadcastState encodes a chat.state event once and pushes it to every
// peer. A peer whose write fails is closed and dropped; its read loop then
// unwinds on its own. It returns how many peers received the event.
func (ps *peerSet) broadcastState(snapshot any, seq int64) int {
	msg, err := prepareEvent(EventChatState, snapshot, seq)
	if err != nil {
		ps.log.Error().Err(err).Int64("seq", seq).Msg("encoding chat.state")
		return 0
	}

	delivered := 0
	for _, p := range ps.list() {
		ok, err := p.pushState(seq, msg)
		switch {
		case err != nil:
			ps.log.Warn().Err(err).Str("connId", p.ID).Msg("dropping peer after failed push")
			p.Close()
			ps.remove(p.ID)
		case ok:
			delivered++
		}
	}
	return delivered
}

// closeAll closes and forgets every peer.
func (ps *peerSet) closeAll() {
	ps.mu.Lock()
	peers := ps.peers
	ps.peers = make(map[string]*Peer)
	ps.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}
