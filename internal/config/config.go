// Package config loads the appguard YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration file.
type Config struct {
	Monitor  MonitorConfig  `yaml:"monitor"`
	Sequence SequenceConfig `yaml:"sequence"`
	Control  ControlConfig  `yaml:"control"`
	Host     HostConfig     `yaml:"host"`
	Blocking BlockingConfig `yaml:"blocking"`
	DataDir  string         `yaml:"data_dir"`
	LogFile  string         `yaml:"log_file"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Cooldown     time.Duration `yaml:"cooldown"`
}

// SequenceConfig holds the suppression stage offsets, measured from arming.
type SequenceConfig struct {
	OverlayDelay  time.Duration `yaml:"overlay_delay"`
	FirstRecheck  time.Duration `yaml:"first_recheck"`
	SecondRecheck time.Duration `yaml:"second_recheck"`
	FinalRecheck  time.Duration `yaml:"final_recheck"`
}

type ControlConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Token      string `yaml:"token"`
}

type HostConfig struct {
	Display     string   `yaml:"display"`      // empty uses $DISPLAY
	HomeCommand []string `yaml:"home_command"` // fallback home launch
}

// BlockingConfig seeds the block list when nothing has been persisted yet.
type BlockingConfig struct {
	Enabled bool     `yaml:"enabled"`
	Apps    []string `yaml:"apps"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PollInterval: 50 * time.Millisecond,
			Cooldown:     500 * time.Millisecond,
		},
		Sequence: SequenceConfig{
			OverlayDelay:  20 * time.Millisecond,
			FirstRecheck:  50 * time.Millisecond,
			SecondRecheck: 200 * time.Millisecond,
			FinalRecheck:  500 * time.Millisecond,
		},
		Control: ControlConfig{
			ListenAddr: "127.0.0.1:7797",
		},
		Host: HostConfig{
			HomeCommand: []string{"wmctrl", "-k", "on"},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write saves cfg to path, creating the parent directory.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if c.Monitor.Cooldown <= 0 {
		return fmt.Errorf("monitor.cooldown must be positive")
	}

	stages := []struct {
		name string
		d    time.Duration
	}{
		{"sequence.overlay_delay", c.Sequence.OverlayDelay},
		{"sequence.first_recheck", c.Sequence.FirstRecheck},
		{"sequence.second_recheck", c.Sequence.SecondRecheck},
		{"sequence.final_recheck", c.Sequence.FinalRecheck},
	}
	prev := time.Duration(0)
	for _, s := range stages {
		if s.d <= prev {
			return fmt.Errorf("%s (%v) must be greater than %v", s.name, s.d, prev)
		}
		prev = s.d
	}

	if _, _, err := net.SplitHostPort(c.Control.ListenAddr); err != nil {
		return fmt.Errorf("control.listen_addr: %w", err)
	}
	if len(c.Host.HomeCommand) == 0 {
		return fmt.Errorf("host.home_command must not be empty")
	}
	return nil
}
