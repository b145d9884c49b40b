package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Event is what subscribers receive. Peer is the conversation it belongs to.
type Event struct {
	Type    string `json:"type"`
	Peer    string `json:"peer,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Manager fans events out to dashboard sockets. A socket opened with ?peer=<id>
// only sees events of that conversation.
type Manager struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

type Client struct {
	conn    *websocket.Conn
	peer    string
	send    chan []byte
	manager *Manager
}

func NewManager(logger zerolog.Logger, allowedOrigins []string) *Manager {
	m := &Manager{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return m
}

// Start runs the fan-out loop until ctx is done, then closes every socket.
func (m *Manager) Start(ctx context.Context) error {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.mu.Unlock()
			return nil

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.mu.Unlock()
			m.logger.Debug().Str("peer", client.peer).Int("clients", total).Msg("WebSocket client registered")

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
			}
			total := len(m.clients)
			m.mu.Unlock()
			m.logger.Debug().Int("clients", total).Msg("WebSocket client unregistered")

		case ev := <-m.broadcast:
			m.deliver(ev)
		}
	}
}

func (m *Manager) deliver(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Str("type", ev.Type).Msg("Error marshaling WebSocket event")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		if client.peer != "" && client.peer != ev.Peer {
			continue
		}
		select {
		case client.send <- msg:
		default:
			// slow consumer, it will refetch on reconnect
			close(client.send)
			delete(m.clients, client)
		}
	}
}

// Notify queues an event without blocking the caller; events are dropped when the queue is full.
func (m *Manager) Notify(eventType, peer string, payload any) {
	select {
	case m.broadcast <- Event{Type: eventType, Peer: peer, Payload: payload}:
	default:
		m.logger.Warn().Str("type", eventType).Str("peer", peer).Msg("WebSocket queue full, dropping event")
	}
}

func (m *Manager) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Handler upgrades GET /ws?peer=<id> to a subscription.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			m.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		client := &Client{
			conn:    conn,
			peer:    c.Query("peer"),
			send:    make(chan []byte, sendBuffer),
			manager: m,
		}

		welcome, _ := json.Marshal(Event{
			Type: "connected",
			Peer: client.peer,
			Payload: map[string]any{
				"time": time.Now().Unix(),
			},
		})
		client.send <- welcome

		select {
		case m.register <- client:
		case <-m.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var in struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &in); err != nil {
			continue
		}
		if in.Type == "ping" {
			c.sendPong()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) sendPong() {
	msg, _ := json.Marshal(Event{
		Type:    "pong",
		Payload: map[string]any{"time": time.Now().Unix()},
	})

	c.manager.mu.RLock()
	defer c.manager.mu.RUnlock()
	if _, ok := c.manager.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
