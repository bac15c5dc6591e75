// Package main is the CLI entry point for appguard.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/appguard/internal/config"
	"github.com/eliteGoblin/focusd/appguard/internal/control"
	"github.com/eliteGoblin/focusd/appguard/internal/daemon"
	"github.com/eliteGoblin/focusd/appguard/internal/domain"
	"github.com/eliteGoblin/focusd/appguard/internal/infra"
	"github.com/eliteGoblin/focusd/appguard/internal/overlay"
	"github.com/eliteGoblin/focusd/appguard/internal/policy"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appguard",
	Short: "Foreground app guard - keeps blocked apps off screen",
	Long: `appguard watches which application is in the foreground and, when a
blocked one appears, sends you back to the desktop and shows a notice.

The monitor runs in the background; the other commands talk to it over
its local control channel.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor in the foreground",
	Long:  `Runs the monitor and control server until interrupted. Used by the service manager and by 'start'.`,
	RunE:  runDaemon,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitor in the background",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor status",
	RunE:  runStatus,
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the block list",
}

var blockSetCmd = &cobra.Command{
	Use:   "set [app-id...]",
	Short: "Replace the block list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateBlocked(func(c *control.Client, ids []domain.AppID) ([]domain.AppID, error) {
			return c.SetBlocked(ids)
		}, args)
	},
}

var blockAddCmd = &cobra.Command{
	Use:   "add <app-id>...",
	Short: "Add apps to the block list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateBlocked(func(c *control.Client, ids []domain.AppID) ([]domain.AppID, error) {
			return c.AddBlocked(ids)
		}, args)
	},
}

var blockRemoveCmd = &cobra.Command{
	Use:   "remove <app-id>...",
	Short: "Remove apps from the block list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateBlocked(func(c *control.Client, ids []domain.AppID) ([]domain.AppID, error) {
			return c.RemoveBlocked(ids)
		}, args)
	},
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the block list",
	RunE:  runBlockList,
}

var blockPresetCmd = &cobra.Command{
	Use:   "preset [name]",
	Short: "Add a preset group of apps, or list presets",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBlockPreset,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn monitoring on",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn monitoring off",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(false) },
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List installed applications that can be blocked",
	RunE:  runApps,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent suppressions",
	RunE:  runHistory,
}

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Show blocking notices in this terminal",
	RunE:  runOverlay,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install appguard as a service that starts on login",
	RunE:  runSetup,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the appguard service",
	RunE:  runUninstall,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	jsonOutput   bool
	historyLimit int
	userMode     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default depends on execution mode)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of sessions to show")
	setupCmd.Flags().BoolVar(&userMode, "user", false, "Install as a per-user service even when run as root")
	uninstallCmd.Flags().BoolVar(&userMode, "user", false, "Remove the per-user service even when run as root")

	blockCmd.AddCommand(blockSetCmd, blockAddCmd, blockRemoveCmd, blockListCmd, blockPresetCmd)
	rootCmd.AddCommand(runCmd, startCmd, statusCmd, blockCmd, enableCmd, disableCmd,
		appsCmd, historyCmd, overlayCmd, setupCmd, uninstallCmd, versionCmd)
}

// execMode returns the paths for this invocation.
func execMode() *infra.ExecModeConfig {
	if userMode {
		return infra.GetUserModeConfig()
	}
	return infra.DetectExecMode()
}

// loadConfig reads the config file and fills path defaults from the execution mode.
func loadConfig() (*config.Config, *infra.ExecModeConfig, error) {
	mode := execMode()
	path := configPath
	if path == "" {
		path = mode.ConfigPath
	}
	mode.ConfigPath = path

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	home := infra.GetRealUserHome()
	if cfg.DataDir == "" {
		cfg.DataDir = mode.DataDir
	}
	cfg.DataDir = infra.ExpandHome(home, cfg.DataDir)
	if cfg.LogFile == "" {
		cfg.LogFile = mode.LogFile
	}
	cfg.LogFile = infra.ExpandHome(home, cfg.LogFile)
	return cfg, mode, nil
}

// newClient finds the running monitor through the registry, falling back
// to the configured address.
func newClient() (*control.Client, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	return control.NewClient(controlAddr(cfg), cfg.Control.Token), nil
}

func controlAddr(cfg *config.Config) string {
	registry := infra.NewFileRegistry(cfg.DataDir, infra.NewProcessManager())
	if info, err := registry.Get(); err == nil && info != nil && info.ControlAddr != "" {
		return info.ControlAddr
	}
	return cfg.Control.ListenAddr
}

func notRunning(err error) error {
	if errors.Is(err, domain.ErrDaemonNotRunning) {
		return fmt.Errorf("appguard is not running (run 'appguard start')")
	}
	return err
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, mode, err := loadConfig()
	if err != nil {
		return err
	}

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(cfg.DataDir, pm)
	if alive, _ := registry.IsAlive(); alive {
		fmt.Println("appguard is already running")
		return nil
	}

	if err := daemon.StartDaemon(mode.ConfigPath); err != nil {
		return err
	}

	info, err := daemon.WaitForDaemon(registry, 5*time.Second, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("monitor did not come up, see %s: %w", cfg.LogFile, err)
	}

	fmt.Println("\n=== appguard Started ===")
	fmt.Printf("PID: %d\n", info.PID)
	fmt.Printf("Control: %s\n", info.ControlAddr)
	fmt.Printf("Log: %s\n", cfg.LogFile)
	fmt.Println("========================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("\n=== appguard Status ===")

	c, err := newClient()
	if err != nil {
		return err
	}
	st, err := c.Status()
	if err != nil {
		if errors.Is(err, domain.ErrDaemonNotRunning) {
			fmt.Println("Status: NOT RUNNING")
			fmt.Println("\nRun 'appguard start' to enable monitoring.")
			return nil
		}
		return err
	}

	fmt.Println("Status: RUNNING")
	if st.Version != "" {
		fmt.Printf("Version: %s\n", st.Version)
	}
	fmt.Printf("Monitoring: %s\n", onOff(st.Enabled))
	if st.MonitoringGranted != nil {
		fmt.Printf("Service: %s\n", onOff(*st.MonitoringGranted))
	}
	fmt.Printf("Overlay clients: %d\n", st.OverlayClients)

	if st.LastBlockedID != "" && st.LastBlockedAt != nil {
		fmt.Printf("Last blocked: %s (%s ago)\n", st.LastBlockedID, time.Since(*st.LastBlockedAt).Round(time.Second))
	}
	if st.ActiveSession != nil {
		fmt.Printf("Active session: %s on %s (%s)\n", st.ActiveSession.ID, st.ActiveSession.TargetLabel, st.ActiveSession.Stage)
	}

	fmt.Println("\nBlocked applications:")
	printIDs(st.BlockedIDs)
	fmt.Println("=======================")
	return nil
}

func updateBlocked(op func(*control.Client, []domain.AppID) ([]domain.AppID, error), args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ids, err := op(c, toAppIDs(args))
	if err != nil {
		return notRunning(err)
	}
	fmt.Println("Blocked applications:")
	printIDs(ids)
	return nil
}

func runBlockList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ids, err := c.Blocked()
	if err != nil {
		return notRunning(err)
	}
	printIDs(ids)
	return nil
}

func runBlockPreset(cmd *cobra.Command, args []string) error {
	registry := policy.NewRegistry()
	if len(args) == 0 {
		for _, id := range registry.List() {
			p, _ := registry.Get(id)
			fmt.Printf("[%s] %s\n", p.ID(), p.Name())
			for _, app := range p.AppIDs() {
				label, _ := policy.KnownLabel(app)
				fmt.Printf("  - %s (%s)\n", app, label)
			}
		}
		return nil
	}

	p, err := registry.Get(args[0])
	if err != nil {
		return err
	}
	return updateBlocked(func(c *control.Client, ids []domain.AppID) ([]domain.AppID, error) {
		return c.AddBlocked(ids)
	}, appIDStrings(p.AppIDs()))
}

func setEnabled(enabled bool) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.SetEnabled(enabled); err != nil {
		return notRunning(err)
	}
	fmt.Printf("Monitoring %s\n", onOff(enabled))
	return nil
}

func runApps(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	apps, err := c.Apps()
	if err != nil {
		return notRunning(err)
	}
	for _, app := range apps {
		fmt.Printf("%-32s %s\n", app.ID, app.Name)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	sessions, err := c.History(historyLimit)
	if err != nil {
		return notRunning(err)
	}
	if len(sessions) == 0 {
		fmt.Println("No suppressions recorded.")
		return nil
	}

	for _, s := range sessions {
		failed, skipped := 0, 0
		for _, o := range s.Outcomes {
			if o.Skipped {
				skipped++
			} else if o.Error != "" {
				failed++
			}
		}
		fmt.Printf("%s  %-20s %d actions, %d failed, %d skipped\n",
			s.ArmedAt.Local().Format("2006-01-02 15:04:05"), s.TargetLabel,
			len(s.Outcomes)-skipped, failed, skipped)
	}
	return nil
}

func runOverlay(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := control.DialOverlay(controlAddr(cfg), cfg.Control.Token)
	if err != nil {
		return notRunning(err)
	}
	defer src.Close()

	final, err := tea.NewProgram(overlay.New(src), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("overlay failed: %w", err)
	}
	if m, ok := final.(overlay.Model); ok && m.Err() != nil {
		return fmt.Errorf("overlay disconnected: %w", m.Err())
	}
	return nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, mode, err := loadConfig()
	if err != nil {
		return err
	}
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	fmt.Printf("Execution mode: %s\n", mode.Mode)

	current, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if current != mode.BinaryPath {
		if err := os.MkdirAll(filepath.Dir(mode.BinaryPath), 0755); err != nil {
			return fmt.Errorf("failed to create binary directory: %w", err)
		}
		if err := copyBinary(current, mode.BinaryPath); err != nil {
			return fmt.Errorf("failed to install binary to %s: %w", mode.BinaryPath, err)
		}
		fmt.Printf("Installed binary to %s\n", mode.BinaryPath)
	}

	if _, err := os.Stat(mode.ConfigPath); errors.Is(err, os.ErrNotExist) {
		if err := config.Write(mode.ConfigPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote config to %s\n", mode.ConfigPath)
	}

	if _, err := infra.EnsureKey(infra.DefaultKeyProvider(cfg.DataDir)); err != nil {
		return fmt.Errorf("failed to provision store key: %w", err)
	}

	mgr, err := infra.NewServiceManager(mode, nil, logger)
	if err != nil {
		return err
	}
	if err := mgr.RequestEnable(); err != nil {
		return err
	}

	fmt.Println("\n=== appguard Installed ===")
	fmt.Printf("Service: %s (%s)\n", mgr.StatusString(), mgr.Platform())
	fmt.Printf("Config: %s\n", mode.ConfigPath)
	fmt.Println("==========================")
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	_, mode, err := loadConfig()
	if err != nil {
		return err
	}
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	mgr, err := infra.NewServiceManager(mode, nil, logger)
	if err != nil {
		return err
	}
	if err := mgr.Uninstall(); err != nil {
		return err
	}
	fmt.Println("appguard service removed")
	return nil
}

// copyBinary copies the binary file to destination using atomic write pattern.
// Writes to temp file first, syncs, chmods, then renames to avoid corruption.
func copyBinary(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".appguard-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmpFile, sourceFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err = os.Chmod(tmpPath, 0755); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}

func createLogger(logFile string) *zap.Logger {
	config := zap.NewProductionConfig()
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err == nil {
			config.OutputPaths = []string{logFile}
			config.ErrorOutputPaths = []string{logFile}
		}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("appguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func toAppIDs(args []string) []domain.AppID {
	ids := make([]domain.AppID, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			ids = append(ids, domain.AppID(a))
		}
	}
	return ids
}

func appIDStrings(ids []domain.AppID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func printIDs(ids []domain.AppID) {
	if len(ids) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, id := range ids {
		label, ok := policy.KnownLabel(id)
		if ok {
			fmt.Printf("  - %s (%s)\n", id, label)
		} else {
			fmt.Printf("  - %s\n", id)
		}
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
