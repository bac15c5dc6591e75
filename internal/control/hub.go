package control

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

const writeTimeout = 5 * time.Second

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans overlay activations out to every connected overlay UI and turns
// their dismiss and back requests into home navigation.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]bool
	navigator domain.Navigator
	logger    *zap.Logger
}

var _ domain.OverlayPresenter = (*Hub)(nil)

// NewHub creates a hub. navigator handles dismissals.
func NewHub(navigator domain.Navigator, logger *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*client]bool),
		navigator: navigator,
		logger:    logger,
	}
}

// Show broadcasts an activation. It fails with ErrNoOverlayClient when no
// overlay UI is connected so the sequencer records the stage as failed.
func (h *Hub) Show(activation domain.OverlayActivation) error {
	payload, err := json.Marshal(activation)
	if err != nil {
		return err
	}
	data, err := json.Marshal(WSMessage{Type: MsgOverlay, Payload: payload})
	if err != nil {
		return err
	}

	// Sending under the write lock keeps remove from closing a channel mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return domain.ErrNoOverlayClient
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("overlay client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
	return nil
}

// ClientCount returns the number of connected overlay UIs.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve registers conn and reads its messages until it disconnects.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.logger.Info("overlay client connected", zap.String("remote", conn.RemoteAddr().String()))
	defer func() {
		h.remove(c)
		h.logger.Info("overlay client disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(data)
	}
}

func (h *Hub) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("ignoring malformed overlay message", zap.Error(err))
		return
	}

	switch msg.Type {
	case MsgDismiss, MsgBack:
		if err := h.navigator.NavigateHome(); err != nil {
			h.logger.Warn("overlay home redirect failed",
				zap.String("trigger", string(msg.Type)),
				zap.Error(err))
		}
	default:
		h.logger.Debug("ignoring overlay message", zap.String("type", string(msg.Type)))
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
