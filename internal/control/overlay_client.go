package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// OverlayClient is the overlay UI side of the websocket.
type OverlayClient struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// DialOverlay connects to the daemon's overlay stream.
func DialOverlay(addr, token string) (*OverlayClient, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDaemonNotRunning, err)
	}
	return &OverlayClient{conn: conn}, nil
}

// Next blocks until the next overlay activation arrives.
func (c *OverlayClient) Next() (domain.OverlayActivation, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return domain.OverlayActivation{}, err
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != MsgOverlay {
			continue
		}
		var activation domain.OverlayActivation
		if err := json.Unmarshal(msg.Payload, &activation); err != nil {
			continue
		}
		return activation, nil
	}
}

// Dismiss asks the daemon to redirect to the home surface.
func (c *OverlayClient) Dismiss() error {
	return c.send(MsgDismiss)
}

// Back reports a back gesture; the daemon redirects home instead.
func (c *OverlayClient) Back() error {
	return c.send(MsgBack)
}

func (c *OverlayClient) send(t MsgType) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(WSMessage{Type: t})
}

// Close closes the connection.
func (c *OverlayClient) Close() error {
	return c.conn.Close()
}
