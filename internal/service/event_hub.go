package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/set-night/mindchat/internal/domain"
)

const (
	EventSessionState = "session_state"
	EventIdentity     = "identity"
)

// Event is the JSON frame pushed to websocket clients.
type Event struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"session_id,omitempty"`
	State     string           `json:"state,omitempty"`
	Cost      int64            `json:"cost,omitempty"`
	Error     string           `json:"error,omitempty"`
	SignedIn  *bool            `json:"signed_in,omitempty"`
	At        time.Time        `json:"at"`
}

// EventHub fans events out to every open connection of a user.
type EventHub struct {
	mu    sync.RWMutex
	conns map[domain.UserID]map[*EventConn]struct{}
}

type EventConn struct {
	UserID   domain.UserID
	conn     *websocket.Conn
	send     chan []byte
	sendOnce sync.Once
}

func NewEventHub() *EventHub {
	return &EventHub{conns: make(map[domain.UserID]map[*EventConn]struct{})}
}

func (c *EventConn) closeSend() { c.sendOnce.Do(func() { close(c.send) }) }

func (h *EventHub) Register(userID domain.UserID, conn *websocket.Conn) *EventConn {
	c := &EventConn{UserID: userID, conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*EventConn]struct{})
	}
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) Unregister(c *EventConn) {
	h.mu.Lock()
	if m := h.conns[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.conns, c.UserID)
		}
	}
	h.mu.Unlock()
	c.closeSend()
}

// Publish drops the event for connections whose buffer is full.
func (h *EventHub) Publish(userID domain.UserID, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal hub event", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (h *EventHub) OnStateChange(change StateChange) {
	ev := Event{
		Type:      EventSessionState,
		SessionID: change.SessionID,
		State:     change.State.String(),
		Cost:      change.Cost,
		At:        change.At,
	}
	if change.Err != nil {
		ev.Error = change.Err.Error()
	}
	h.Publish(change.OwnerID, ev)
}

// RelayIdentity forwards identity events until ctx is done.
func (h *EventHub) RelayIdentity(ctx context.Context, events <-chan domain.IdentityEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			signedIn := ev.SignedIn
			h.Publish(ev.UserID, Event{Type: EventIdentity, SignedIn: &signedIn, At: ev.At})
		}
	}
}

func (c *EventConn) WritePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// ReadPump discards client frames and returns when the connection closes.
func (c *EventConn) ReadPump() {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
