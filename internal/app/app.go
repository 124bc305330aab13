// Package app wires the services together for the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"company-lookup/internal/api"
	"company-lookup/internal/backend"
	"company-lookup/internal/cache"
	"company-lookup/internal/config"
	"company-lookup/internal/history"
	"company-lookup/internal/logs"
	"company-lookup/internal/lookup"
	"company-lookup/internal/metrics"
	"company-lookup/internal/store"
	"company-lookup/internal/ttl"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired components.
type App struct {
	Config  *config.Config
	Logger  *logs.Logger
	Metrics *metrics.Registry
	Store   store.Store
	Cache   *cache.ResultCache
	History *history.History
	Backend *backend.Client
	Lookup  *lookup.Service
	Sweeper *ttl.Sweeper

	closers []func() error
}

// New builds an App from cfg. A durable store that cannot be opened is
// replaced by store.Unavailable: lookups keep working without caching.
func New(ctx context.Context, cfg *config.Config, logger *logs.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if logger == nil {
		logger = logs.New(cfg.Logs())
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewRegistry(),
	}

	a.Store = a.openStore(ctx)

	a.Cache = cache.NewResultCache(a.Store,
		cache.WithDefaultTTL(cfg.Cache.TTL),
		cache.WithMetrics(a.Metrics),
		cache.WithLogger(logger.Component("cache")),
	)
	a.History = history.New(a.Store, cfg.History.MaxItems, a.Metrics, logger.Component("history"))
	a.Backend = backend.NewClient(cfg.BackendClient(), a.Metrics, logger.Component("backend"))
	a.Lookup = lookup.NewService(a.Backend, a.Cache, a.History, a.Metrics, logger.Component("lookup"))
	a.Sweeper = ttl.NewSweeper(a.Cache, cfg.Cache.SweepInterval, logger.Component("sweeper"), a.Metrics)

	return a, nil
}

func (a *App) openStore(ctx context.Context) store.Store {
	switch a.Config.Storage.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(a.Config.Storage.QuotaBytes)
	default:
		s, err := store.OpenSQLite(ctx, a.Config.SQLite(), a.Logger.Component("store"))
		if err != nil {
			a.Logger.Warn().Err(err).Str("path", a.Config.Storage.Path).Msg("durable store unavailable, caching disabled")
			return store.Unavailable{}
		}
		a.closers = append(a.closers, s.Close)
		return s
	}
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	h := api.NewHandler(a.Lookup, a.Backend, a.Cache, a.History, a.Metrics, a.Logger.Component("api"))
	return api.RegisterRoutes(http.NewServeMux(), h, a.Logger.Component("http"))
}

// Serve runs the HTTP server and the sweeper until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.Sweeper.Start(ctx)

	server := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", server.Addr).
			Bool("sweeper", a.Sweeper.Enabled()).
			Msg("server started")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	a.Logger.Info().Msg("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the durable store.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
