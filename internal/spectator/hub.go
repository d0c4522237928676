// Package spectator serves a read-only websocket feed of battle frames.
package spectator

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/replay"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufSize    = 64
)

// Hub tracks connected spectators and fans frames out to them. A spectator
// whose send buffer is full is dropped rather than slowing the battle.
type Hub struct {
	logger    *zap.Logger
	writeWait time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil; writeWait > 0.
func NewHub(logger *zap.Logger, writeWait time.Duration) *Hub {
	return &Hub{
		logger:    logger,
		writeWait: writeWait,
		clients:   make(map[*client]struct{}),
	}
}

// WriteFrame encodes f and broadcasts it to every spectator.
func (h *Hub) WriteFrame(f replay.Frame) error {
	data, err := replay.Encode(f)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Broadcast queues data for every spectator and remembers it as the frame
// sent to spectators who join later.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Info("dropping slow spectator", zap.String("remote", c.remote))
			h.removeLocked(c)
		}
	}
}

// Len returns the number of connected spectators.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every spectator and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// join registers conn and starts its pumps.
func (h *Hub) join(conn *websocket.Conn, remote string) {
	c := &client{hub: h, conn: conn, remote: remote, send: make(chan []byte, sendBufSize)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()
	h.logger.Info("spectator joined", zap.String("remote", remote))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.removeLocked(c)
		h.logger.Info("spectator left", zap.String("remote", c.remote))
	}
}

func (h *Hub) removeLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// readPump discards inbound messages and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("spectator read error", zap.String("remote", c.remote), zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued frames as binary messages until send is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
