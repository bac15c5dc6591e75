// Package control exposes the daemon's configuration channel over HTTP and
// streams overlay activations to connected overlay UIs over websocket.
package control

import (
	"encoding/json"
	"time"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// MsgType identifies a websocket message.
type MsgType string

const (
	// Server -> overlay
	MsgOverlay MsgType = "overlay"

	// Overlay -> server. Both redirect to the home surface; the overlay
	// never lets back-navigation return to the blocked app.
	MsgDismiss MsgType = "dismiss"
	MsgBack    MsgType = "back"
)

// WSMessage is the websocket envelope.
type WSMessage struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Enabled           bool                       `json:"enabled"`
	BlockedIDs        []domain.AppID             `json:"blocked_ids"`
	MonitoringGranted *bool                      `json:"monitoring_granted,omitempty"`
	LastBlockedID     domain.AppID               `json:"last_blocked_id,omitempty"`
	LastBlockedAt     *time.Time                 `json:"last_blocked_at,omitempty"`
	ActiveSession     *domain.SuppressionSession `json:"active_session,omitempty"`
	OverlayClients    int                        `json:"overlay_clients"`
	Version           string                     `json:"version,omitempty"`
}

// BlockedRequest carries app identifiers for /api/blocked.
type BlockedRequest struct {
	IDs []domain.AppID `json:"ids"`
}

// EnabledRequest is the body of PUT /api/enabled.
type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// MonitoringResponse is returned by /api/monitoring.
type MonitoringResponse struct {
	Granted bool `json:"granted"`
}
