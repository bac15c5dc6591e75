// Package daemon runs the foreground monitor loop and spawns it as a
// detached background process.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// Engine is the suppression pipeline driven by the monitor.
type Engine interface {
	Tick()
	ForegroundChanged(id domain.AppID)
	Status() (domain.InterventionRecord, *domain.SuppressionSession)
	Shutdown()
}

// MonitorConfig holds monitor loop configuration.
type MonitorConfig struct {
	PollInterval time.Duration // foreground sampling cadence (default 50ms)
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: 50 * time.Millisecond,
	}
}

// Monitor is the single execution context of the daemon. The poll ticker,
// pushed foreground changes, stage timers and control requests are all
// serviced by one goroutine, so engine state never needs locking.
type Monitor struct {
	config   MonitorConfig
	engine   Engine
	clock    *LoopClock
	watcher  domain.ForegroundWatcher
	registry domain.DaemonRegistry
	info     domain.DaemonInfo
	logger   *zap.Logger
}

// NewMonitor creates a monitor. The engine's sequencer must schedule its
// stages on clock.
func NewMonitor(config MonitorConfig, engine Engine, clock *LoopClock, logger *zap.Logger) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultMonitorConfig().PollInterval
	}
	return &Monitor{
		config: config,
		engine: engine,
		clock:  clock,
		logger: logger,
	}
}

// SetWatcher enables push notifications in addition to polling.
func (m *Monitor) SetWatcher(w domain.ForegroundWatcher) {
	m.watcher = w
}

// SetRegistry makes the monitor announce itself for CLI discovery while running.
func (m *Monitor) SetRegistry(r domain.DaemonRegistry, info domain.DaemonInfo) {
	m.registry = r
	m.info = info
}

// Run services the loop until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.registry != nil {
		if err := m.registry.Register(m.info); err != nil {
			m.logger.Error("failed to register monitor", zap.Error(err))
			m.clock.stop()
			return err
		}
		defer func() {
			if err := m.registry.Clear(); err != nil {
				m.logger.Warn("failed to clear registry", zap.Error(err))
			}
		}()
	}

	m.logger.Info("monitor started",
		zap.Int("pid", m.info.PID),
		zap.Duration("poll_interval", m.config.PollInterval))

	watchCtx, cancelWatch := context.WithCancel(ctx)
	changes := make(chan domain.AppID, 16)
	if m.watcher != nil {
		go m.watch(watchCtx, changes)
	}

	ticker := time.NewTicker(m.config.PollInterval)
	defer func() {
		ticker.Stop()
		cancelWatch()
		m.engine.Shutdown()
		m.clock.stop()
	}()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()

		case <-ticker.C:
			m.engine.Tick()

		case id := <-changes:
			m.engine.ForegroundChanged(id)

		case task := <-m.clock.tasks:
			task()
		}
	}
}

// Do runs fn on the monitor loop and waits for it to finish.
func (m *Monitor) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := m.clock.post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-m.clock.done:
		return ErrMonitorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reads the engine state from the loop.
func (m *Monitor) Status(ctx context.Context) (domain.InterventionRecord, *domain.SuppressionSession, error) {
	var (
		record domain.InterventionRecord
		active *domain.SuppressionSession
	)
	err := m.Do(ctx, func() {
		record, active = m.engine.Status()
	})
	return record, active, err
}

func (m *Monitor) watch(ctx context.Context, changes chan<- domain.AppID) {
	err := m.watcher.Watch(ctx, changes)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("foreground watch ended, polling only", zap.Error(err))
	}
}
