package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// StartDaemon spawns the monitor from the running executable.
func StartDaemon(configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	return StartDaemonWithPath(executable, configPath)
}

// StartDaemonWithPath spawns "<binary> run" detached from the caller.
func StartDaemonWithPath(binaryPath, configPath string) error {
	cmd := exec.Command(binaryPath, daemonArgs(configPath)...)

	// New session so the monitor outlives the terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// No stdin/stdout/stderr - the daemon logs to its own file
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return cmd.Process.Release()
}

func daemonArgs(configPath string) []string {
	args := []string{"run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// WaitForDaemon polls the registry until a live daemon is registered.
func WaitForDaemon(registry domain.DaemonRegistry, timeout, interval time.Duration) (*domain.DaemonInfo, error) {
	deadline := time.Now().Add(timeout)
	for {
		if alive, err := registry.IsAlive(); err == nil && alive {
			return registry.Get()
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrDaemonNotRunning
		}
		time.Sleep(interval)
	}
}
