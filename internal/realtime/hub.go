package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"marketplace/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 16
)

// Message is what clients receive over the socket.
type Message struct {
	Type  string `json:"type"`
	Batch *Batch `json:"batch,omitempty"`
}

const (
	MessageConnected = "connected"
	MessageRefresh   = "refresh"
)

// Client is one connected socket bound to a session.
type Client struct {
	session *models.Session
	conn    *websocket.Conn
	send    chan []byte
}

// Hub fans batches out to connected clients. Customers and providers only
// receive changes that name them; admins receive everything.
type Hub struct {
	logger     *zerolog.Logger
	upgrader   websocket.Upgrader
	register   chan *Client
	unregister chan *Client
	broadcast  chan Batch
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub(allowedOrigins []string, logger *zerolog.Logger) *Hub {
	h := &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Batch, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run owns client registration until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case b := <-h.broadcast:
			h.deliver(b)
		}
	}
}

// Publish queues a batch for delivery. It never blocks the caller; when the
// queue is full the batch is dropped and logged.
func (h *Hub) Publish(b Batch) {
	select {
	case h.broadcast <- b:
	default:
		h.logger.Warn().Str("table", b.Table).Msg("Realtime broadcast queue full, dropping batch")
	}
}

func (h *Hub) deliver(b Batch) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		visible := Visible(b, c.session)
		if len(visible.Changes) == 0 {
			continue
		}
		data, err := json.Marshal(Message{Type: MessageRefresh, Batch: &visible})
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to encode realtime batch")
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow client; it will refetch on reconnect.
			h.logger.Warn().Str("user_id", c.session.UserID).Msg("Realtime client send buffer full")
		}
	}
}

// Visible filters a batch down to what the session may see.
func Visible(b Batch, s *models.Session) Batch {
	if s.IsAdmin() {
		return b
	}
	out := Batch{Table: b.Table}
	if s == nil {
		return out
	}
	for _, c := range b.Changes {
		if c.Involves(s.UserID) {
			out.Changes = append(out.Changes, c)
		}
	}
	return out
}

// ClientCount is the number of registered sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and pumps messages until the socket closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session *models.Session) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{session: session, conn: conn, send: make(chan []byte, clientSendSize)}
	hello, _ := json.Marshal(Message{Type: MessageConnected})
	c.send <- hello
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil
	}

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
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
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
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
