package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/appid"
	"github.com/repochain/repochain/internal/config"
	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/engine"
	"github.com/repochain/repochain/internal/core/store"
	apperrors "github.com/repochain/repochain/internal/errors"
	"github.com/repochain/repochain/internal/metrics"
	"github.com/repochain/repochain/internal/observability"
	"github.com/repochain/repochain/internal/server"
	"github.com/repochain/repochain/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var errChainNotLoaded = errors.New("resolution chain not loaded")

type chainSnapshot struct {
	resolver *engine.ChainResolver
	handles  []core.RepositoryHandle
}

// liveChain lets SIGHUP replace the chain while requests are in flight.
// A resolution keeps the snapshot it started with.
type liveChain struct {
	current atomic.Pointer[chainSnapshot]
}

func (l *liveChain) Resolve(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (*core.ChainResolution, error) {
	snap := l.current.Load()
	if snap == nil || snap.resolver == nil {
		return nil, errChainNotLoaded
	}
	return snap.resolver.Resolve(ctx, coord, override)
}

func (l *liveChain) Handles() []core.RepositoryHandle {
	snap := l.current.Load()
	if snap == nil {
		return nil
	}
	return snap.handles
}

func (l *liveChain) store(resolver *engine.ChainResolver, handles []core.RepositoryHandle) {
	l.current.Store(&chainSnapshot{resolver: resolver, handles: handles})
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve resolutions over HTTP",
	Long: `Serve the configured resolution chain over HTTP.

Endpoints:
  GET  /v1/resolve?coordinate=group:name:version
  POST /v1/resolve              {"coordinates": [...]}
  GET  /v1/repositories
  GET  /health, /health/live, /health/ready, /health/startup
  GET  /version, /metrics

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload configuration and rebuild the chain`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	serverOverrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverOverrides["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		serverOverrides["port"] = serverPort
	}
	overrides := map[string]any{}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}

	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		return err
	}

	observability.InitServerLogger(appid.BinaryName, cfg.Logging.Level, appid.TelemetryNamespace)
	logger := observability.ServerLogger

	metricsPort := cfg.Metrics.Port
	if metricsPort == 0 {
		metricsPort = 9090
	}
	if err := observability.InitMetrics(appid.BinaryName, metricsPort, appid.TelemetryNamespace); err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
		return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "metrics initialization failed")
	}
	metrics.SetServerStartTime(time.Now().Unix())

	var db *store.Store
	if cfg.Cache.Enabled {
		db, err = openStore(ctx, cfg)
		if err != nil {
			logger.Error("Failed to open cache store", zap.String("path", cfg.Store.Path), zap.Error(err))
			return err
		}
	}

	live := &liveChain{}
	resolver, handles, err := buildResolver(cfg, db, chainOptions{UseCache: true, Logger: logger})
	if err != nil {
		closeStore(db)
		return err
	}
	live.store(resolver, handles)
	if len(handles) == 0 {
		logger.Warn("No repositories configured; every resolution will report not found",
			zap.String("config", configSource()))
	}

	logger.Info("Initializing server",
		zap.String("service", appid.BinaryName),
		zap.String("namespace", appid.TelemetryNamespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", metricsPort),
		zap.Int("repositories", len(handles)),
		zap.Bool("cache", db != nil))

	var health *handlers.HealthManager
	if cfg.Health.Enabled {
		health = handlers.NewHealthManager(versionInfo.Version)
		health.RegisterChecker("telemetry", telemetryHealthChecker{})
		health.RegisterChecker("repositories", handlers.HealthCheckerFunc(func(context.Context) error {
			if len(live.Handles()) == 0 {
				return apperrors.NewServiceUnavailableError("no repositories configured")
			}
			return nil
		}))
		if db != nil {
			health.RegisterChecker("store", handlers.HealthCheckerFunc(func(ctx context.Context) error {
				return db.DB.PingContext(ctx)
			}))
		}
		health.SetRepositoryCount(len(handles))
	}

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		MetricsPort:  metricsPort,
		AdminToken:   os.Getenv(appid.EnvPrefix + "ADMIN_TOKEN"),
		Pprof:        cfg.Debug.Enabled && cfg.Debug.PprofEnabled,
		API: &handlers.ResolveAPI{
			Resolver: live,
			Timeout:  cfg.Resolution.Timeout,
			Workers:  cfg.Workers,
		},
		Health: health,
	})
	handlers.SetAppIdentity(GetAppIdentity())

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// LIFO: the HTTP server stops first, the logger flushes last.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// stdout/stderr may already be closed
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		closeStore(db)
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading configuration", zap.String("config", configSource()))

		next, err := config.Load(ctx, cfgFile, overrides)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "config reload failed")
		}
		if next.Store != cfg.Store || next.Cache.Enabled != cfg.Cache.Enabled {
			logger.Warn("Store settings changed; restart to apply them")
		}

		resolver, handles, err := buildResolver(next, db, chainOptions{UseCache: true, Logger: logger})
		if err != nil {
			logger.Error("Failed to rebuild chain; keeping the previous one", zap.Error(err))
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "chain rebuild failed")
		}
		live.store(resolver, handles)
		if health != nil {
			health.SetRepositoryCount(len(handles))
		}
		logger.Info("Resolution chain reloaded", zap.Int("repositories", len(handles)))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server...",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return apperrors.Wrap(ctx, apperrors.CodeInternal, err, "server error")
	}
	return nil
}

func closeStore(db *store.Store) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil && observability.Logger() != nil {
		observability.Logger().Warn("Failed to close cache store", zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
