package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/internal/telemetry"
	"github.com/dmoretti/lifeline/pkg/api"
	"github.com/dmoretti/lifeline/pkg/cache"
	"github.com/dmoretti/lifeline/pkg/config"
	"github.com/dmoretti/lifeline/pkg/lifecycle"
	"github.com/dmoretti/lifeline/pkg/metrics"
	"github.com/dmoretti/lifeline/pkg/notify"
	"github.com/dmoretti/lifeline/pkg/queue"
	"github.com/dmoretti/lifeline/pkg/router"
	badgerstore "github.com/dmoretti/lifeline/pkg/store/badger"
	"github.com/dmoretti/lifeline/pkg/syncer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the lifeline relay",
	Long: `Start the lifeline relay with the specified configuration.

The relay opens the durable store, restores the cache generations and
any queued alerts, and serves the gateway on the configured port.

Examples:
  # Start with the default config location
  lifeline start

  # Start with a custom config file
  lifeline start --config /etc/lifeline/config.yaml

  # Start with environment variable overrides
  LIFELINE_LOGGING_LEVEL=DEBUG lifeline start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "lifeline",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("Telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "lifeline",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Lifeline relay starting", "version", Version)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Metrics first, so the component constructors see an enabled registry.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Durable store. Everything that must survive a crash lives here.
	storeOpts := badgerstore.DefaultOptions(cfg.Store.Path)
	storeOpts.InMemory = cfg.Store.InMemory
	storeOpts.SyncWrites = !cfg.Store.DisableSyncWrites
	kv, err := badgerstore.New(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open store at %s: %w", cfg.Store.Path, err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	}()
	logger.Info("Durable store opened", "path", cfg.Store.Path, "sync_writes", storeOpts.SyncWrites)

	upstream, err := url.Parse(cfg.Gateway.Upstream)
	if err != nil {
		return fmt.Errorf("invalid upstream URL %q: %w", cfg.Gateway.Upstream, err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
		logger.Info("Notification webhook configured", "url", cfg.Notify.WebhookURL)
	}

	offlinePage, err := loadOfflinePage(cfg.Gateway.OfflinePagePath)
	if err != nil {
		return err
	}

	// Wire the pipeline: store -> cache/queue -> router -> syncer. The
	// cache fetches install assets through the router's upstream client, so
	// the fetch func is bound lazily to break the construction cycle.
	q := queue.New(kv, metrics.NewQueueMetrics())

	var gw *router.Router
	fetch := func(ctx context.Context, asset string) (*cache.Entry, error) {
		return gw.Fetcher()(ctx, asset)
	}
	cacheMgr := cache.NewManager(kv, fetch, "", "", metrics.NewCacheMetrics())

	gw = router.New(router.Config{
		Upstream:         upstream,
		CriticalPrefixes: cfg.Gateway.CriticalPrefixes,
		OfflinePage:      offlinePage,
		Timeout:          cfg.Gateway.RequestTimeout,
	}, cacheMgr, q, notifier, metrics.NewGatewayMetrics())

	engine := syncer.New(syncer.Config{
		Endpoint: cfg.Remote.Endpoint,
		Timeout:  cfg.Remote.Timeout,
	}, q, notifier, metrics.NewSyncMetrics())

	runner := syncer.NewRunner(engine, cfg.Sync.Interval)
	gw.OnOnline(runner.NotifyOnline)

	ctrl := lifecycle.NewController(kv, cacheMgr, cfg.Gateway.StaticAssets)
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	identity, err := ctrl.Identity(ctx)
	if err != nil {
		return err
	}
	logger.Info("Device identity", "device_id", identity.ID)

	// First run installs and activates the initial generation. Failure is
	// not fatal: the relay still queues alerts while offline, and the next
	// install attempt populates the cache.
	if err := ctrl.EnsureActive(ctx); err != nil {
		logger.Warn("Initial cache install failed, serving without static tier", "error", err)
	}

	runner.Start(ctx)
	defer runner.Stop()

	server := api.NewServer(cfg.API, api.Deps{
		Gateway:   gw,
		Store:     kv,
		Queue:     q,
		Lifecycle: ctrl,
		Engine:    engine,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	// Anything captured while we were down goes out now if we can reach
	// the remote endpoint.
	runner.RequestSync()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Relay is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error", "error", err)
				return err
			}
		case <-time.After(cfg.ShutdownTimeout):
			logger.Error("Shutdown timed out", "timeout", cfg.ShutdownTimeout.String())
			return fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout)
		}
		logger.Info("Relay stopped gracefully")
		return nil

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Relay stopped")
		return nil
	}
}

// loadOfflinePage reads the configured offline page, or returns empty to
// select the built-in one.
func loadOfflinePage(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read offline page %s: %w", path, err)
	}
	return string(data), nil
}
