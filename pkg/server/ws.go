package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gravito-framework/sysdash/pkg/types"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// message is an encoded update event
type message struct {
	seq  uint64
	data []byte
}

// client holds at most one pending message. A slow client skips
// intermediate updates instead of queueing them.
type client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending *message

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// offer replaces the pending message unless it is older than what is already pending
func (c *client) offer(m message) {
	c.mu.Lock()
	if c.pending == nil || m.seq >= c.pending.seq {
		c.pending = &m
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) take() *message {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.pending
	c.pending = nil
	return m
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	var sent bool
	var lastSeq uint64

	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			m := c.take()
			if m == nil || (sent && m.seq <= lastSeq) {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, m.data); err != nil {
				return
			}
			sent, lastSeq = true, m.seq
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop discards client input and returns when the connection drops
func (c *client) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// hub tracks connected websocket clients
type hub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) == 0
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(m message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.offer(m)
	}
}

// closeAll disconnects every client and refuses new ones
func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		c.close()
	}
	if len(clients) > 0 {
		h.logger.Info("Disconnected websocket clients", "count", len(clients))
	}
}

func (s *Server) eventMessage(snap types.Snapshot) (message, error) {
	data, err := json.Marshal(types.UpdateEvent{Event: types.EventSystemUpdate, Data: s.payload(snap)})
	if err != nil {
		return message{}, err
	}
	return message{seq: snap.Sequence, data: data}, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(conn)
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	defer s.hub.remove(c)

	s.logger.Debug("Websocket client connected", "remote", r.RemoteAddr, "clients", s.hub.count())

	m, err := s.eventMessage(s.source.Snapshot())
	if err != nil {
		s.logger.Error("Failed to marshal update event", "error", err)
		c.close()
		return
	}
	c.offer(m)

	go c.writeLoop()
	c.readLoop()

	s.logger.Debug("Websocket client disconnected", "remote", r.RemoteAddr)
}
