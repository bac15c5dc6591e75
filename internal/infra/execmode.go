// Package infra implements infrastructure concerns.
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser runs as a per-user service (no sudo required)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as a system service (sudo required)
	ExecModeSystem ExecMode = "system"
)

// ServiceName is the name registered with the host service manager.
const ServiceName = "appguard"

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	BinaryPath string // Where the binary should be installed
	ConfigPath string // Default YAML config location
	DataDir    string // Encrypted store, key file and daemon registry
	LogFile    string
	IsRoot     bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			BinaryPath: "/usr/local/bin/appguard",
			ConfigPath: "/etc/appguard/config.yaml",
			DataDir:    "/var/lib/appguard",
			LogFile:    "/var/log/appguard.log",
			IsRoot:     true,
		}
	}

	home, _ := os.UserHomeDir()
	return userModeConfig(home)
}

// GetUserModeConfig returns user mode config regardless of current euid.
// When running under sudo, uses SUDO_USER to get the invoking user's home directory.
func GetUserModeConfig() *ExecModeConfig {
	cfg := userModeConfig(GetRealUserHome())
	cfg.IsRoot = os.Geteuid() == 0
	return cfg
}

func userModeConfig(home string) *ExecModeConfig {
	dataDir := filepath.Join(home, ".local", "share", "appguard")
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "appguard")
	}
	configDir := filepath.Join(home, ".config", "appguard")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "appguard")
	}

	return &ExecModeConfig{
		Mode:       ExecModeUser,
		BinaryPath: filepath.Join(home, ".local", "bin", "appguard"),
		ConfigPath: filepath.Join(configDir, "config.yaml"),
		DataDir:    dataDir,
		LogFile:    filepath.Join(dataDir, "appguard.log"),
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root service)"
	case ExecModeUser:
		return "user (per-user service)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
