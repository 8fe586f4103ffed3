package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

// SnapshotSource reads the current snapshot for the initial push
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, universeName string) (*leaderboard.Snapshot, bool, error)
}

// Hub fans fresh snapshots out to stream clients. Each client follows
// exactly one universe, chosen at connect time. Slow clients are
// dropped rather than allowed to stall a broadcast.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*streamClient]bool

	source   SnapshotSource
	registry *universe.Registry
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a stream hub
func NewHub(source SnapshotSource, registry *universe.Registry, log *logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*streamClient]bool),
		source:      source,
		registry:    registry,
		logger:      log.WithField("module", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast pushes a snapshot to every client following its universe
func (h *Hub) Broadcast(snapshot *leaderboard.Snapshot) {
	if snapshot == nil {
		return
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode snapshot for broadcast")
		return
	}

	// Sends are non-blocking and happen under the lock so they can never
	// race an unregister closing the channel.
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.subscribers[snapshot.Universe] {
		select {
		case client.send <- payload:
		default:
			h.logger.WithField("universe", snapshot.Universe).Warn("Dropping slow stream client")
			h.unregisterLocked(client)
		}
	}
}

// ServeWS upgrades the connection and registers the client.
// GET /ws/leaderboard?universe=DOW30
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	u := h.registry.Resolve(r.URL.Query().Get("universe"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Stream upgrade failed")
		return
	}

	client := &streamClient{
		hub:      h,
		conn:     conn,
		universe: u.Name,
		send:     make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.subscribers[u.Name] == nil {
		h.subscribers[u.Name] = make(map[*streamClient]bool)
	}
	h.subscribers[u.Name][client] = true
	h.mu.Unlock()

	h.logger.WithField("universe", u.Name).Debug("Stream client connected")

	// New clients get the current snapshot before any broadcast
	if snapshot, found, err := h.source.GetSnapshot(r.Context(), u.Name); err == nil && found {
		if payload, err := json.Marshal(snapshot); err == nil {
			client.send <- payload
		}
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients for a universe
func (h *Hub) ClientCount(universeName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[universeName])
}

func (h *Hub) unregister(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *streamClient) {
	if clients, ok := h.subscribers[client.universe]; ok {
		if _, registered := clients[client]; registered {
			delete(clients, client)
			close(client.send)
		}
	}
}

// streamClient is one websocket connection following one universe
type streamClient struct {
	hub      *Hub
	conn     *websocket.Conn
	universe string
	send     chan []byte
}

// readPump drains inbound frames so pong handling works; clients do not
// send commands on this stream
func (c *streamClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
