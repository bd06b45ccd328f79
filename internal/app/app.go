// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the inventory client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/maulanalegowo31-cloud/tvri-equipment-system/config"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/cache"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/coordinator"
	"github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/httpclient"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config      *config.Config
	logger      *slog.Logger
	backend     *cache.BackendResult
	store       *cache.Store
	coordinator *coordinator.Coordinator

	stopCleanup context.CancelFunc
	cleanupDone chan struct{}

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.LoadResult

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Notifier receives coordinator notifications. Optional.
	Notifier coordinator.Notifier

	// HTTPClient overrides the client built from the HTTP configuration.
	HTTPClient *http.Client

	// Transport overrides the HTTP transport entirely.
	Transport coordinator.Transport

	// DisableCleanupLoop skips the background cache sweep. Short-lived
	// commands that sweep explicitly set this.
	DisableCleanupLoop bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		config: appCfg,
		logger: logger,
	}

	// A backend that cannot be opened degrades to memory-only instead of
	// failing startup, same as a backend that fails its probe.
	backend, err := cache.NewBackend(ctx, appCfg)
	if err != nil {
		logger.Warn("failed to open cache backend, using memory only",
			"backend", appCfg.Cache.Backend, "error", err)
		backend = &cache.BackendResult{}
	}
	app.backend = backend

	app.store = cache.New(ctx, backend.Backend, cache.Options{
		DefaultTTL: appCfg.Cache.TTL,
		Logger:     logger,
	})

	opts := coordinator.OptionsFromConfig(appCfg)
	opts.Notifier = cfg.Notifier
	opts.Logger = logger
	opts.Transport = cfg.Transport
	if opts.Transport == nil && !opts.Simulation {
		client := cfg.HTTPClient
		if client == nil {
			client = httpclient.NewHTTPClient(&httpclient.ClientConfig{
				Timeout:               appCfg.HTTP.Timeout,
				ResponseHeaderTimeout: appCfg.HTTP.ResponseHeaderTimeout,
			})
		}
		opts.Transport = coordinator.NewHTTPTransport(client, appCfg.Endpoint.URL)
	}

	coord, err := coordinator.New(ctx, app.store, opts)
	if err != nil {
		if closeErr := app.backend.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize coordinator: %w (also: cache close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	app.coordinator = coord

	if !cfg.DisableCleanupLoop {
		loopCtx, cancel := context.WithCancel(context.Background())
		app.stopCleanup = cancel
		app.cleanupDone = make(chan struct{})
		go func() {
			defer close(app.cleanupDone)
			app.store.RunCleanupLoop(loopCtx, appCfg.Cache.CleanupInterval)
		}()
	}

	app.logStartupInfo(cfg.AppConfig.Source)
	return app, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Store returns the cache store.
func (a *App) Store() *cache.Store {
	return a.store
}

// Coordinator returns the request coordinator.
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Shutdown tears down app components in dependency order:
// 1. Stop the cache sweep loop, waiting for it until ctx is done.
// 2. Close the cache backend and its storage connection.
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Debug("shutting down application...")

	var errs []error

	// 1. Stop the sweep loop so nothing touches the backend while it closes
	if a.stopCleanup != nil {
		a.stopCleanup()
		select {
		case <-a.cleanupDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("cleanup loop stop: %w", ctx.Err()))
		}
	}

	// 2. Close the cache backend
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("cache backend close error", "error", err)
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Debug("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(source string) {
	cfg := a.config

	if source != "" {
		a.logger.Debug("configuration loaded", "source", source)
	}

	if cfg.Endpoint.SimulationMode {
		a.logger.Info("simulation mode enabled, no requests reach the endpoint")
	} else if cfg.Endpoint.IsPlaceholder() {
		a.logger.Warn("inventory endpoint URL is not configured",
			"recommendation", "set INVENTORY_ENDPOINT_URL or endpoint.url in config.yaml")
	}

	a.logger.Debug("cache configured",
		"backend", a.store.BackendName(),
		"durable", a.store.Available(),
		"ttl", cfg.Cache.TTL,
	)
	a.logger.Debug("retry policy",
		"max_attempts", cfg.Retry.MaxAttempts,
		"delay", cfg.Retry.Delay,
	)
}
