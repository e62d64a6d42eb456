package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lhdbsbz/berrychat/internal/chat"
)

// Conn is one browser WebSocket watching a conversation.
type Conn struct {
	ID             string
	ConversationID string
	WS             *websocket.Conn
	writeMu        sync.Mutex
	ConnectedAt    time.Time

	// Only the newest transcript is kept; the writer skips versions already sent.
	pendingMu sync.Mutex
	pending   *chat.Snapshot
	sent      int
	wake      chan struct{}
}

func newConn(id, conversationID string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:             id,
		ConversationID: conversationID,
		WS:             ws,
		ConnectedAt:    time.Now(),
		sent:           -1,
		wake:           make(chan struct{}, 1),
	}
}

// Send writes a frame to the WebSocket connection (thread-safe).
func (c *Conn) Send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.WS.WriteJSON(frame)
}

// Offer queues a transcript for push. It never blocks, so it is safe as a chat.Listener.
func (c *Conn) Offer(snap chat.Snapshot) {
	c.pendingMu.Lock()
	if snap.Version <= c.sent || (c.pending != nil && snap.Version <= c.pending.Version) {
		c.pendingMu.Unlock()
		return
	}
	c.pending = &snap
	c.pendingMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pushLoop writes offered transcripts until ctx ends or a write fails.
func (c *Conn) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		c.pendingMu.Lock()
		snap := c.pending
		c.pending = nil
		if snap != nil {
			c.sent = snap.Version
		}
		c.pendingMu.Unlock()
		if snap == nil {
			continue
		}
		if err := c.Send(EventFrame(EventTranscript, snap.Version, snap)); err != nil {
			slog.Debug("transcript push failed", "conn", c.ID, "error", err)
			return
		}
	}
}

// ConnManager tracks all active WebSocket connections.
type ConnManager struct {
	mu    sync.RWMutex
	conns map[string]*Conn // connID → conn
}

func NewConnManager() *ConnManager {
	return &ConnManager{conns: make(map[string]*Conn)}
}

// Add registers a new connection.
func (m *ConnManager) Add(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID] = conn
}

// Remove unregisters a connection.
func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

// Count returns the number of connected watchers.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// CloseConversation tells every watcher of a conversation that it is gone and hangs up.
func (m *ConnManager) CloseConversation(conversationID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	frame := EventFrame(EventClosed, 0, map[string]string{"conversationId": conversationID})
	for _, conn := range m.conns {
		if conn.ConversationID != conversationID {
			continue
		}
		if err := conn.Send(frame); err != nil {
			slog.Warn("close notice failed", "conn", conn.ID, "error", err)
		}
		conn.writeMu.Lock()
		_ = conn.WS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation closed"),
			time.Now().Add(time.Second))
		conn.writeMu.Unlock()
		conn.WS.Close()
	}
}

// ReadFrame reads and parses a WebSocket message into a Frame.
func ReadFrame(ws *websocket.Conn) (Frame, error) {
	var frame Frame
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return frame, err
	}
	err = json.Unmarshal(msg, &frame)
	return frame, err
}
