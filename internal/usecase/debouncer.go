package usecase

import (
	"time"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// DefaultCooldown is the minimum gap before the same app may trigger again.
const DefaultCooldown = 500 * time.Millisecond

// BlockListReader exposes the current block configuration.
type BlockListReader interface {
	Snapshot() domain.BlockConfiguration
}

// Debouncer gates blocked observations so a session is not re-armed every tick
// while the user stays on a blocked app.
//
// Leaving a blocked app and coming back within the cool-down is not
// re-suppressed; that trade keeps the overlay from flickering.
type Debouncer struct {
	blocklist BlockListReader
	cooldown  time.Duration
	record    domain.InterventionRecord
}

// NewDebouncer creates a debouncer with the given cool-down.
func NewDebouncer(blocklist BlockListReader, cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{blocklist: blocklist, cooldown: cooldown}
}

// Accept reports whether an observation of id at now starts a new intervention.
// On acceptance the intervention record is updated.
func (d *Debouncer) Accept(id domain.AppID, now time.Time) bool {
	if id == "" || !d.blocklist.Snapshot().IsBlocked(id) {
		return false
	}

	if id == d.record.LastBlockedID && now.Sub(d.record.LastBlockedAt) <= d.cooldown {
		return false
	}

	d.record = domain.InterventionRecord{LastBlockedID: id, LastBlockedAt: now}
	return true
}

// Record returns the last accepted trigger.
func (d *Debouncer) Record() domain.InterventionRecord {
	return d.record
}

// Reset clears the intervention record (service teardown only).
func (d *Debouncer) Reset() {
	d.record = domain.InterventionRecord{}
}
