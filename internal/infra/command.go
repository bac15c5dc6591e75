package infra

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Run(name string, args ...string) error
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete
func (r *RealCommandRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// ErrNoHomeCommand is returned when no fallback home command is configured.
var ErrNoHomeCommand = errors.New("no home command configured")

// HomeLauncher runs the configured command that brings the user to the
// desktop when window-manager navigation is refused.
type HomeLauncher struct {
	argv   []string
	runner CommandRunner
	logger *zap.Logger
}

// NewHomeLauncher creates a launcher for argv.
func NewHomeLauncher(argv []string, logger *zap.Logger) *HomeLauncher {
	return NewHomeLauncherWithRunner(argv, &RealCommandRunner{}, logger)
}

// NewHomeLauncherWithRunner creates a launcher with an injectable runner (for testing).
func NewHomeLauncherWithRunner(argv []string, runner CommandRunner, logger *zap.Logger) *HomeLauncher {
	return &HomeLauncher{
		argv:   append([]string(nil), argv...),
		runner: runner,
		logger: logger,
	}
}

// Launch runs the home command and waits for it.
func (h *HomeLauncher) Launch() error {
	if len(h.argv) == 0 || h.argv[0] == "" {
		return ErrNoHomeCommand
	}

	h.logger.Debug("launching home", zap.String("command", strings.Join(h.argv, " ")))
	if err := h.runner.Run(h.argv[0], h.argv[1:]...); err != nil {
		return fmt.Errorf("failed to run home command %q: %w", h.argv[0], err)
	}
	return nil
}
