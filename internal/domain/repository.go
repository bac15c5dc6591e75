package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoForeground is returned when the foreground app cannot be determined.
	ErrNoForeground = errors.New("foreground application unavailable")

	// ErrNoOverlayClient is returned when no overlay UI is connected.
	ErrNoOverlayClient = errors.New("no overlay client connected")

	// ErrAppNotFound is returned by registry lookups for unknown apps.
	ErrAppNotFound = errors.New("application not found")

	// ErrDaemonNotRunning is returned when the monitor daemon cannot be reached.
	ErrDaemonNotRunning = errors.New("appguard daemon is not running")
)

// Clock abstracts time so the suppression timeline can run on virtual time in tests.
type Clock interface {
	Now() time.Time

	// AfterFunc schedules f after d on the monitor's execution context.
	// Scheduled callbacks cannot be cancelled individually.
	AfterFunc(d time.Duration, f func())
}

// ForegroundSource queries the host for the current foreground application.
// Implementation: X11 via xgb.
type ForegroundSource interface {
	// Foreground returns the focused application's identifier.
	Foreground() (AppID, error)
}

// ForegroundWatcher is optionally implemented by sources that can push changes.
type ForegroundWatcher interface {
	// Watch delivers foreground changes until ctx is canceled.
	Watch(ctx context.Context, changes chan<- AppID) error
}

// Navigator performs the host navigation actions used during suppression.
type Navigator interface {
	// NavigateBack dismisses the focused window (minimize).
	NavigateBack() error

	// NavigateHome brings the home surface (desktop) forward.
	NavigateHome() error

	// LaunchHome is the generic fallback launch request for the home surface.
	LaunchHome() error
}

// OverlayPresenter displays the blocking notice.
// Implementation: websocket hub consumed by the overlay UI.
type OverlayPresenter interface {
	Show(activation OverlayActivation) error
}

// AppRegistry is the host's application registry.
type AppRegistry interface {
	// Label returns the display name for an app.
	Label(id AppID) (string, error)

	// Installed returns every installed application, system ones included.
	Installed() ([]InstalledApp, error)
}

// ConfigRepository persists the block configuration across restarts.
type ConfigRepository interface {
	LoadBlockConfiguration() (*BlockConfiguration, error)
	SaveBlockConfiguration(cfg BlockConfiguration) error
}

// HistoryRecorder stores completed suppression sessions.
type HistoryRecorder interface {
	RecordSession(s SuppressionSession) error
	RecentSessions(limit int) ([]SuppressionSession, error)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// NameOf returns the executable name of a PID.
	NameOf(pid int) (string, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry lets CLI commands find the running daemon.
// Implementation: hidden JSON file next to the data directory.
type DaemonRegistry interface {
	Register(info DaemonInfo) error
	Get() (*DaemonInfo, error)
	IsAlive() (bool, error)
	Clear() error
	GetRegistryPath() string
}

// MonitoringGate reports and requests the host-level monitoring capability.
type MonitoringGate interface {
	// IsMonitoringEnabled reports whether the monitor service is installed and running.
	IsMonitoringEnabled() bool

	// RequestEnable installs and starts the monitor service.
	RequestEnable() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
