package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/errprop/errprop/server/internal/api"
	"github.com/errprop/errprop/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

// Event names used in Message.Event.
const (
	EventSession = "session"
	EventExpired = "expired"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string               `json:"event"`
	Data  *api.SessionResponse `json:"data,omitempty"`
}

// Hub manages WebSocket clients, each following one session.
type Hub struct {
	store     *store.Store
	presenter *api.Presenter
	interval  time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	session string
	conn    *websocket.Conn
	send    chan []byte

	// onPong runs on every pong; the hub uses it to keep the session alive.
	onPong func()
}

// New creates a Hub that renders sessions from st with p and re-broadcasts
// every interval.
func New(st *store.Store, p *api.Presenter, interval time.Duration) *Hub {
	return &Hub{
		store:     st,
		presenter: p,
		interval:  interval,
		clients:   make(map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. Run blocks until ctx is cancelled,
// then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and follows the session
// named by the {id} route parameter. The current state is sent immediately.
// A connected client keeps its session alive: the session is touched on
// connect and on every pong. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.store.Get(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		session: id,
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
		onPong:  func() { h.store.Touch(id) },
	}
	h.store.Touch(id)
	h.register(c)
	defer h.unregister(c)

	if data, ok := h.buildMessage(id); ok {
		h.deliver([]*client{c}, data)
	}

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Notify pushes the current state of session id to its clients. If the
// session no longer exists they receive an expired event and are dropped.
func (h *Hub) Notify(id string) {
	targets := h.clientsOf(id)
	if len(targets) == 0 {
		return
	}
	data, ok := h.buildMessage(id)
	h.deliver(targets, data)
	if !ok {
		for _, c := range targets {
			h.unregister(c)
		}
	}
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) clientsOf(id string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	for c := range h.clients {
		if c.session == id {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) broadcast() {
	h.mu.RLock()
	sessions := make(map[string]struct{})
	for c := range h.clients {
		sessions[c.session] = struct{}{}
	}
	h.mu.RUnlock()

	for id := range sessions {
		h.Notify(id)
	}
}

func (h *Hub) deliver(targets []*client, data []byte) {
	h.mu.RLock()
	var slow []*client
	for _, c := range targets {
		if _, ok := h.clients[c]; !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// Client's outgoing buffer is full: disconnect it.
	for _, c := range slow {
		slog.Debug("ws: dropping slow client", "session", c.session)
		h.unregister(c)
	}
}

// buildMessage renders the session event for id, or the expired event when
// the session is gone (ok is false).
func (h *Hub) buildMessage(id string) (data []byte, ok bool) {
	msg := Message{Event: EventExpired}
	snap, ok := h.store.Get(id)
	if ok {
		resp := h.presenter.Session(snap)
		msg = Message{Event: EventSession, Data: &resp}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: marshal message", "session", id, "err", err)
	}
	return data, ok
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.onPong != nil {
			c.onPong()
		}
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
