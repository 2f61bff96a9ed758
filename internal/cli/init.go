// Package cli wires the finsession components from configuration. The
// server and every CLI command share this setup.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"finsession/internal/api"
	"finsession/internal/auth"
	"finsession/internal/backend"
	"finsession/internal/cache"
	"finsession/internal/config"
	"finsession/internal/finance"
	"finsession/internal/log"
	"finsession/internal/metrics"
	"finsession/internal/notify"
)

const readyProbeKey = "readyz_probe"

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// SetupLogger builds the application logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	slog.SetDefault(logger.Logger)
	return logger
}

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Backend  *backend.BackendResult
	Cache    *cache.Store
	Janitor  *cache.Manager
	Auth     *auth.Service
	API      *api.Client
	Toasts   *notify.Recorder
	AMQP     *notify.AMQPNotifier
	Provider *finance.Provider

	janitorRunning bool
}

// Build creates storage, the cache, the auth service, the API client, the
// notifier chain and the provider. The AMQP publisher is only connected
// when AMQP_URL is set.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	clock := clockwork.NewRealClock()
	m := metrics.New()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger, clock).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Backend: res,
		Toasts:  notify.NewRecorder(0),
	}

	app.Cache = cache.NewStore(res.KV, cache.Options{
		TTL:         cfg.CacheTTL,
		StoreExpiry: cfg.CacheStoreExpiry,
		Namespace:   cfg.CacheNamespace,
		Clock:       clock,
		Logger:      logger,
		Metrics:     m,
	})
	app.Janitor = cache.NewManager(func(removed int) {
		if removed > 0 {
			logger.WithComponent(log.ComponentCache).Debug("Swept expired entries", log.FieldCount, removed)
		}
	})
	app.Janitor.Register(res.Cleaner)

	app.Auth = auth.NewService(res.KV, auth.Options{
		TokenTTL: cfg.AuthTokenTTL,
		Clock:    clock,
		Logger:   logger,
	})

	app.API, err = api.New(cfg.APIBaseURL,
		api.WithTokenSource(app.Auth),
		api.WithTimeout(cfg.APITimeout),
		api.WithLogger(logger),
		api.WithMetrics(m))
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger), app.Toasts}
	if cfg.AMQPURL != "" {
		app.AMQP, err = notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("connect toast publisher: %w", err)
		}
		notifiers = append(notifiers, app.AMQP)
	}

	app.Provider = finance.NewProvider(app.API, app.Auth, app.Cache, finance.Options{
		Notifier:          notify.Instrumented{Next: notifiers, Metrics: m},
		Clock:             clock,
		Logger:            logger,
		Metrics:           m,
		EmptyRetryDelay:   cfg.EmptyRetryDelay,
		FailureRetryDelay: cfg.FailureRetryDelay,
	})
	return app, nil
}

// StartJanitor begins the periodic sweep of expired storage entries.
func (a *App) StartJanitor() {
	if a.janitorRunning {
		return
	}
	a.janitorRunning = true
	a.Janitor.StartCleanup(a.Config.CleanupInterval)
}

// Ready probes the storage backend.
func (a *App) Ready(ctx context.Context) error {
	_, _, err := a.Backend.KV.Get(ctx, readyProbeKey)
	return err
}

// Close releases the AMQP connection and the storage backend.
func (a *App) Close() error {
	var errs []error
	if a.janitorRunning {
		a.Janitor.Stop()
		a.janitorRunning = false
	}
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close toast publisher: %w", err))
		}
	}
	if a.Backend != nil && a.Backend.Cleanup != nil {
		if err := a.Backend.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
// When it fires, shutdown runs with a context bounded by timeout and the
// returned channel is closed once it has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, shutdown func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if shutdown != nil {
			shutdown(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}
