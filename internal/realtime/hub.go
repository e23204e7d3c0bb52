// Package realtime pushes request status changes to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Event describes one lifecycle change.
type Event struct {
	Event              string               `json:"event"`
	RequestID          string               `json:"requestId"`
	Number             string               `json:"number"`
	Status             models.RequestStatus `json:"status"`
	ActorID            string               `json:"actorId"`
	RequesterID        string               `json:"requesterId"`
	RequesterManagerID string               `json:"-"`
	ApproverID         string               `json:"approverId,omitempty"`
	At                 time.Time            `json:"at"`
}

// Viewer identifies the subscriber behind a connection.
type Viewer struct {
	ID   string
	Role models.Role
}

// CanSee reports whether the viewer should receive e: procurement and admins see
// everything, managers their team's requests, everyone their own.
func (v Viewer) CanSee(e Event) bool {
	switch v.Role {
	case models.RoleProcurement, models.RoleAdmin:
		return true
	}
	if v.ID == "" {
		return false
	}
	if v.Role == models.RoleManager && v.ID == e.RequesterManagerID {
		return true
	}
	return v.ID == e.RequesterID || v.ID == e.ApproverID || v.ID == e.ActorID
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	viewer Viewer
	send   chan []byte
}

type envelope struct {
	event   Event
	payload []byte
}

// Hub tracks connected clients and fans out events.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	onChange   func(int)
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// Option customises a Hub.
type Option func(*Hub)

// WithClientGauge reports the client count after every change.
func WithClientGauge(fn func(int)) Option {
	return func(h *Hub) { h.onChange = fn }
}

// WithOriginCheck overrides the upgrade origin check.
func WithOriginCheck(fn func(*http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub builds a hub. Call Run before serving connections.
func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run dispatches until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.reportCount()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.reportCount()
			h.logger.Debug("realtime client connected", zap.String("user_id", c.viewer.ID))
		case c := <-h.unregister:
			h.remove(c)
		case env := <-h.broadcast:
			var slow []*client
			h.mu.RLock()
			for c := range h.clients {
				if !c.viewer.CanSee(env.event) {
					continue
				}
				select {
				case c.send <- env.payload:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.logger.Warn("dropping slow realtime client", zap.String("user_id", c.viewer.ID))
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.reportCount()
}

func (h *Hub) reportCount() {
	if h.onChange != nil {
		h.onChange(h.Clients())
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for delivery. It never blocks; events are dropped when the hub is saturated.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("encode realtime event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{event: e, payload: payload}:
	default:
		h.logger.Warn("realtime broadcast saturated, event dropped",
			zap.String("event", e.Event), zap.String("request_id", e.RequestID))
	}
}

// Serve upgrades the connection and attaches it for viewer.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, viewer Viewer) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{hub: h, conn: conn, viewer: viewer, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return context.Canceled
	case <-r.Context().Done():
		_ = conn.Close()
		return r.Context().Err()
	}
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("realtime read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
