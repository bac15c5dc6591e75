package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/blocklist"
	"github.com/eliteGoblin/focusd/appguard/internal/config"
	"github.com/eliteGoblin/focusd/appguard/internal/control"
	"github.com/eliteGoblin/focusd/appguard/internal/daemon"
	"github.com/eliteGoblin/focusd/appguard/internal/domain"
	"github.com/eliteGoblin/focusd/appguard/internal/infra"
	"github.com/eliteGoblin/focusd/appguard/internal/infra/x11"
	"github.com/eliteGoblin/focusd/appguard/internal/usecase"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, mode, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.LogFile)
	defer func() { _ = logger.Sync() }()

	var mgr *infra.ServiceManagerImpl
	program := infra.NewServiceProgram(func(ctx context.Context) error {
		return serve(ctx, cfg, mgr, logger)
	})

	mgr, err = infra.NewServiceManager(mode, program, logger)
	if err != nil {
		// No service system (containers, bare sessions): run directly.
		logger.Warn("service manager unavailable, running unmanaged", zap.Error(err))

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg, nil, logger)
	}
	return mgr.Run()
}

// serve wires the monitor pipeline and control server and blocks until ctx ends.
func serve(ctx context.Context, cfg *config.Config, gate domain.MonitoringGate, logger *zap.Logger) error {
	pm := infra.NewProcessManager()

	key, err := infra.EnsureKey(infra.DefaultKeyProvider(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("failed to get store key: %w", err)
	}
	store, err := infra.NewEncryptedStore(cfg.DataDir, key)
	if err != nil {
		return err
	}
	defer store.Close()

	blockStore := blocklist.NewStore()
	blockSvc := usecase.NewBlockListService(blockStore, store, logger)
	if err := blockSvc.LoadOrSeed(seedConfiguration(cfg)); err != nil {
		// Monitoring still runs on the seed; later edits retry persistence.
		logger.Warn("failed to restore block configuration", zap.Error(err))
	}

	launcher := infra.NewHomeLauncher(cfg.Host.HomeCommand, logger)
	host, err := x11.NewHost(cfg.Host.Display, pm, launcher, logger)
	if err != nil {
		return err
	}
	defer host.Close()

	apps := infra.NewDesktopRegistry(logger)
	hub := control.NewHub(host, logger)
	clock := daemon.NewLoopClock()

	timings := usecase.SequenceTimings{
		OverlayDelay:  cfg.Sequence.OverlayDelay,
		FirstRecheck:  cfg.Sequence.FirstRecheck,
		SecondRecheck: cfg.Sequence.SecondRecheck,
		FinalRecheck:  cfg.Sequence.FinalRecheck,
	}
	if err := timings.Validate(); err != nil {
		return err
	}

	sampler := usecase.NewSampler(host, logger)
	sequencer := usecase.NewSequencer(clock, sampler, host, hub, timings, logger)
	engine := usecase.NewEngine(
		blockStore,
		sampler,
		usecase.NewDebouncer(blockStore, cfg.Monitor.Cooldown),
		sequencer,
		usecase.NewNameResolver(apps, logger),
		clock,
		logger,
	)
	engine.SetHistory(store)

	ln, err := net.Listen("tcp", cfg.Control.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Control.ListenAddr, err)
	}

	monitor := daemon.NewMonitor(daemon.MonitorConfig{PollInterval: cfg.Monitor.PollInterval}, engine, clock, logger)
	monitor.SetWatcher(host)
	monitor.SetRegistry(infra.NewFileRegistry(cfg.DataDir, pm), domain.DaemonInfo{
		PID:         os.Getpid(),
		ControlAddr: ln.Addr().String(),
		StartedAt:   time.Now().Unix(),
		AppVersion:  Version,
	})

	server := control.NewServer(hub, blockSvc, monitor, cfg.Control.Token, logger)
	server.SetAppRegistry(apps)
	server.SetHistory(store)
	server.SetVersion(Version)
	if gate != nil {
		server.SetMonitoringGate(gate)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Serve(ctx, ln) }()

	err = monitor.Run(ctx)
	cancel()
	if sErr := <-serverErr; sErr != nil {
		logger.Error("control server failed", zap.Error(sErr))
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func seedConfiguration(cfg *config.Config) domain.BlockConfiguration {
	return domain.NewBlockConfiguration(cfg.Blocking.Enabled, toAppIDs(cfg.Blocking.Apps))
}
