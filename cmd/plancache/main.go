// Package main implements the entry point for the plancache daemon: the
// offline-first data cache and sync engine for the Daily Planner backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dayplan/plancache/cache"
	"github.com/dayplan/plancache/config"
	"github.com/dayplan/plancache/connectivity"
	"github.com/dayplan/plancache/coordinator"
	"github.com/dayplan/plancache/metric"
	"github.com/dayplan/plancache/pkg/retry"
	"github.com/dayplan/plancache/remote"
	"github.com/dayplan/plancache/storage/badgerstore"
	"github.com/dayplan/plancache/syncqueue"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "plancache"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer engine.close()

	return runWithSignalHandling(context.Background(), cfg, engine, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting plancache (offline-first planner cache)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// engine bundles the wired components so shutdown can walk them in order.
type engine struct {
	coord      *coordinator.Coordinator
	monitor    *connectivity.Monitor
	queueStore *badgerstore.Store
	metricsSrv *metric.Server
}

// buildEngine wires config into the running components: durable queue
// store, sync queue, entry store, TTL policy, REST source, connectivity
// monitor, coordinator, and the diagnostics server.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	registry := metric.NewMetricsRegistry()

	queueStore, err := badgerstore.New(badgerstore.Config{
		Dir:            cfg.Queue.StoragePath,
		InMemory:       cfg.Queue.InMemory,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("open queue storage: %w", err)
	}

	queue, err := syncqueue.New(queueStore,
		syncqueue.WithMaxAttempts(cfg.Queue.MaxAttempts),
		syncqueue.WithDrainWorkers(cfg.Queue.DrainWorkers),
		syncqueue.WithRetryConfig(retry.Config{
			MaxAttempts:  cfg.Queue.MaxAttempts,
			InitialDelay: cfg.Queue.Retry.InitialDelay.Std(),
			MaxDelay:     cfg.Queue.Retry.MaxDelay.Std(),
			Multiplier:   cfg.Queue.Retry.Multiplier,
			AddJitter:    true,
		}),
		syncqueue.WithLogger(logger),
		syncqueue.WithMetricsRegistry(registry))
	if err != nil {
		queueStore.Close()
		return nil, fmt.Errorf("create sync queue: %w", err)
	}

	store, err := cache.NewStore[[]byte](cfg.Cache.MaxEntries,
		cache.WithMetrics[[]byte](registry, "entrystore"))
	if err != nil {
		queueStore.Close()
		return nil, fmt.Errorf("create entry store: %w", err)
	}

	ttls := make(map[string]time.Duration, len(cfg.Cache.Collections))
	for name, ttl := range cfg.Cache.Collections {
		ttls[name] = ttl.Std()
	}
	policy, err := cache.NewPolicy(ttls)
	if err != nil {
		queueStore.Close()
		return nil, fmt.Errorf("create TTL policy: %w", err)
	}

	source, err := remote.NewHTTPSource(cfg.Remote.BaseURL, cfg.Remote.RequestTimeout.Std())
	if err != nil {
		queueStore.Close()
		return nil, fmt.Errorf("create remote source: %w", err)
	}

	monitorOpts := []connectivity.MonitorOption{
		connectivity.WithProbe(connectivity.HTTPProbe(
			cfg.Remote.BaseURL+cfg.Connectivity.ProbePath,
			cfg.Remote.RequestTimeout.Std())),
		connectivity.WithInterval(cfg.Connectivity.ProbeInterval.Std()),
		connectivity.WithThresholds(cfg.Connectivity.FailureThreshold, cfg.Connectivity.SuccessThreshold),
		connectivity.WithLogger(logger),
	}
	if cfg.Connectivity.HeartbeatURL != "" {
		monitorOpts = append(monitorOpts, connectivity.WithHeartbeat(cfg.Connectivity.HeartbeatURL))
	}
	monitor := connectivity.NewMonitor(monitorOpts...)

	coord, err := coordinator.New(coordinator.Config{
		Source:            source,
		Store:             store,
		Policy:            policy,
		Queue:             queue,
		Monitor:           monitor,
		Logger:            logger,
		RevalidateTimeout: cfg.Remote.RequestTimeout.Std(),
	})
	if err != nil {
		queueStore.Close()
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	var metricsSrv *metric.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry,
			func() any { return coord.Stats() })
	}

	return &engine{
		coord:      coord,
		monitor:    monitor,
		queueStore: queueStore,
		metricsSrv: metricsSrv,
	}, nil
}

func (e *engine) close() {
	if err := e.queueStore.Close(); err != nil {
		slog.Error("Error closing queue storage", "error", err)
	}
}

// runWithSignalHandling starts the engine and blocks until a shutdown signal.
func runWithSignalHandling(ctx context.Context, cfg *config.Config, e *engine, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := e.monitor.Start(signalCtx); err != nil {
		return fmt.Errorf("start connectivity monitor: %w", err)
	}
	if err := e.coord.Start(signalCtx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	if e.metricsSrv != nil {
		go func() {
			slog.Info("Diagnostics server listening", "address", e.metricsSrv.Address())
			if err := e.metricsSrv.Start(); err != nil {
				slog.Error("Diagnostics server failed", "error", err)
			}
		}()
	}

	slog.Info("plancache started",
		"backend", cfg.Remote.BaseURL,
		"max_entries", cfg.Cache.MaxEntries,
		"collections", len(cfg.Cache.Collections))

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	return shutdown(e, shutdownTimeout)
}

// shutdown stops components in reverse start order. The queue persists on
// every state change, so stopping mid-drain loses nothing.
func shutdown(e *engine, timeout time.Duration) error {
	if e.metricsSrv != nil {
		if err := e.metricsSrv.Stop(); err != nil {
			slog.Error("Error stopping diagnostics server", "error", err)
		}
	}
	if err := e.coord.Stop(timeout); err != nil {
		slog.Error("Error stopping coordinator", "error", err)
		return err
	}
	e.monitor.Stop()

	slog.Info("plancache shutdown complete")
	return nil
}
