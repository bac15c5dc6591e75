package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// stopTimeout bounds how long Stop waits for the monitor to wind down.
const stopTimeout = 3 * time.Second

// ServiceProgram adapts a blocking run function to the service manager.
type ServiceProgram struct {
	run func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewServiceProgram wraps run. run must return once ctx is cancelled.
func NewServiceProgram(run func(ctx context.Context) error) *ServiceProgram {
	return &ServiceProgram{run: run}
}

// Start implements service.Interface. It must not block.
func (p *ServiceProgram) Start(s service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- p.run(ctx) }()
	return nil
}

// Stop implements service.Interface.
func (p *ServiceProgram) Stop(s service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(stopTimeout):
		return fmt.Errorf("monitor did not stop within %v", stopTimeout)
	}
}

// ServiceManagerImpl installs and controls the monitor as a host service
// (systemd, launchd or SysV, whichever the platform provides).
type ServiceManagerImpl struct {
	svc    service.Service
	mode   ExecMode
	logger *zap.Logger
}

// NewServiceManager creates a manager for the given execution mode.
// program may be nil when the caller only needs install/status control.
func NewServiceManager(mode *ExecModeConfig, program service.Interface, logger *zap.Logger) (*ServiceManagerImpl, error) {
	if program == nil {
		program = NewServiceProgram(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	cfg := &service.Config{
		Name:        ServiceName,
		DisplayName: "AppGuard",
		Description: "Keeps blocked applications out of the foreground",
		Executable:  mode.BinaryPath,
		Arguments:   []string{"run", "--config", mode.ConfigPath},
		Option: service.KeyValue{
			"UserService": mode.Mode == ExecModeUser,
			"Restart":     "always",
			"KeepAlive":   true,
			"RunAtLoad":   true,
		},
	}

	svc, err := service.New(program, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return NewServiceManagerWithService(svc, mode.Mode, logger), nil
}

// NewServiceManagerWithService wraps an existing service (for testing).
func NewServiceManagerWithService(svc service.Service, mode ExecMode, logger *zap.Logger) *ServiceManagerImpl {
	return &ServiceManagerImpl{svc: svc, mode: mode, logger: logger}
}

// Install registers the service. Installing twice is not an error.
func (m *ServiceManagerImpl) Install() error {
	if m.IsInstalled() {
		m.logger.Debug("service already installed")
		return nil
	}
	if err := m.svc.Install(); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}
	m.logger.Info("service installed", zap.String("mode", string(m.mode)))
	return nil
}

// Uninstall stops and removes the service.
func (m *ServiceManagerImpl) Uninstall() error {
	if !m.IsInstalled() {
		return nil
	}
	if m.IsRunning() {
		if err := m.svc.Stop(); err != nil {
			m.logger.Warn("failed to stop service before uninstall", zap.Error(err))
		}
	}
	if err := m.svc.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall service: %w", err)
	}
	m.logger.Info("service uninstalled")
	return nil
}

// Start starts the installed service.
func (m *ServiceManagerImpl) Start() error {
	if m.IsRunning() {
		return nil
	}
	if err := m.svc.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	return nil
}

// Stop stops the service.
func (m *ServiceManagerImpl) Stop() error {
	if err := m.svc.Stop(); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}
	return nil
}

// Run blocks under the service manager until stopped.
func (m *ServiceManagerImpl) Run() error {
	return m.svc.Run()
}

// IsInstalled reports whether the service is registered with the host.
func (m *ServiceManagerImpl) IsInstalled() bool {
	_, err := m.svc.Status()
	return !errors.Is(err, service.ErrNotInstalled)
}

// IsRunning reports whether the service is currently running.
func (m *ServiceManagerImpl) IsRunning() bool {
	status, err := m.svc.Status()
	return err == nil && status == service.StatusRunning
}

// StatusString returns a human-readable service state.
func (m *ServiceManagerImpl) StatusString() string {
	status, err := m.svc.Status()
	switch {
	case errors.Is(err, service.ErrNotInstalled):
		return "not installed"
	case err != nil:
		return "unknown (" + err.Error() + ")"
	case status == service.StatusRunning:
		return "running"
	case status == service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Platform names the service backend in use.
func (m *ServiceManagerImpl) Platform() string {
	return m.svc.Platform()
}

// --- domain.MonitoringGate implementation ---

// IsMonitoringEnabled reports whether the service is installed and running.
func (m *ServiceManagerImpl) IsMonitoringEnabled() bool {
	return m.IsRunning()
}

// RequestEnable installs the service if needed and starts it.
func (m *ServiceManagerImpl) RequestEnable() error {
	if err := m.Install(); err != nil {
		return err
	}
	return m.Start()
}

var _ domain.MonitoringGate = (*ServiceManagerImpl)(nil)

// Interactive reports whether the process runs from a terminal rather than
// under the service manager.
func Interactive() bool {
	return service.Interactive()
}
