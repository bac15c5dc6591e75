// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"sort"
	"time"
)

// AppID is an opaque, stable application identifier
// (X11 WM_CLASS, process name, or a mobile package name).
type AppID string

// Observation is a single foreground sample.
type Observation struct {
	AppID      AppID
	ObservedAt time.Time
}

// BlockConfiguration is the process-wide blocking state.
// It is always handled as a value snapshot; updates replace it wholesale.
type BlockConfiguration struct {
	Enabled    bool
	BlockedIDs map[AppID]struct{}
}

// NewBlockConfiguration builds a configuration from a list of identifiers.
func NewBlockConfiguration(enabled bool, ids []AppID) BlockConfiguration {
	set := make(map[AppID]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return BlockConfiguration{Enabled: enabled, BlockedIDs: set}
}

// IsBlocked reports whether id is in the blocked set.
func (c BlockConfiguration) IsBlocked(id AppID) bool {
	_, ok := c.BlockedIDs[id]
	return ok
}

// Active reports whether monitoring has anything to do.
func (c BlockConfiguration) Active() bool {
	return c.Enabled && len(c.BlockedIDs) > 0
}

// IDs returns the blocked identifiers in sorted order.
func (c BlockConfiguration) IDs() []AppID {
	ids := make([]AppID, 0, len(c.BlockedIDs))
	for id := range c.BlockedIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clone returns a deep copy so callers never share the underlying set.
func (c BlockConfiguration) Clone() BlockConfiguration {
	set := make(map[AppID]struct{}, len(c.BlockedIDs))
	for id := range c.BlockedIDs {
		set[id] = struct{}{}
	}
	return BlockConfiguration{Enabled: c.Enabled, BlockedIDs: set}
}

// InterventionRecord remembers the last accepted trigger for the cool-down gate.
type InterventionRecord struct {
	LastBlockedID AppID // empty means none
	LastBlockedAt time.Time
}

// Stage identifies where a suppression session is in its sequence.
type Stage string

const (
	StageArmed        Stage = "armed"
	StageBackNav      Stage = "back_nav"
	StageHomeNav      Stage = "home_nav"
	StageOverlayShown Stage = "overlay_shown"
	StageRecheck      Stage = "recheck"
	StageForceHome    Stage = "force_home"
	StageFallbackHome Stage = "fallback_home"
	StageDone         Stage = "done"
)

// StageOutcome captures what one stage of a session did.
type StageOutcome struct {
	Stage   Stage         `json:"stage"`
	Offset  time.Duration `json:"offset"`
	Skipped bool          `json:"skipped,omitempty"` // target no longer in foreground
	Error   string        `json:"error,omitempty"`
}

// SuppressionSession is one run of the staged intervention sequence.
type SuppressionSession struct {
	ID          string             `json:"id"`
	TargetID    AppID              `json:"target_id"`
	TargetLabel string             `json:"target_label"`
	ArmedAt     time.Time          `json:"armed_at"`
	Stage       Stage              `json:"stage"`
	Blocked     BlockConfiguration `json:"-"` // snapshot valid when armed
	Outcomes    []StageOutcome     `json:"outcomes,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

// OverlayActivation is what the overlay UI receives.
type OverlayActivation struct {
	SessionID    string `json:"session_id"`
	BlockedID    AppID  `json:"blocked_id"`
	BlockedLabel string `json:"blocked_label"`
	Stage        int    `json:"stage"`
}

// InstalledApp is an entry from the host's application registry.
type InstalledApp struct {
	Name   string `json:"name"`
	ID     AppID  `json:"id"`
	System bool   `json:"-"`
}

// DaemonInfo describes the running monitor daemon for CLI discovery.
type DaemonInfo struct {
	PID         int    `json:"pid"`
	ControlAddr string `json:"control_addr"`
	StartedAt   int64  `json:"started_at"`
	AppVersion  string `json:"app_version,omitempty"`
}
