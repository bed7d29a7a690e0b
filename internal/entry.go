// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tabula/internal/api"
	"github.com/starford/tabula/internal/mcpserver"
	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/recordstore"
	"github.com/starford/tabula/internal/seed"
	"github.com/starford/tabula/internal/sse"
	"github.com/starford/tabula/internal/storage"
	"github.com/starford/tabula/internal/tui"
	"github.com/starford/tabula/internal/view"
	"github.com/starford/tabula/internal/watcher"
)

// runtime is the wiring shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *recordstore.Store
	fs     *storage.FS
	close  func()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initializes logging, storage and the record store.
func setup(ctx context.Context, opts []Option) (*runtime, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("storage_key", cfg.Storage.Key),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &runtime{cfg: cfg, logger: logger, close: func() {}}

	var provider storage.Provider
	switch cfg.Storage.Driver {
	case DriverFile:
		// Ensure data directory exists.
		if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.fs = fs
		provider = fs
	case DriverSQLite:
		db, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		rt.close = func() {
			if err := db.Close(); err != nil {
				logger.Warn("close storage failed", slog.String("error", err.Error()))
			}
		}
		provider = db
	case DriverMemory:
		provider = storage.NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	rt.store = recordstore.Open(ctx, provider,
		recordstore.WithKey(cfg.Storage.Key),
		recordstore.WithLocale(cfg.Store.Tag()),
		recordstore.WithQueryLatency(cfg.Store.QueryLatency),
		recordstore.WithRemoveLatency(cfg.Store.RemoveLatency),
		recordstore.WithLogger(logger),
	)
	logger.Info("Table loaded", slog.Int("records", len(rt.store.All())))

	if cfg.Seed.Path != "" && len(rt.store.All()) == 0 {
		if err := seedFile(ctx, rt.store, cfg.Seed.Path, logger); err != nil {
			logger.Warn("seed failed", slog.String("path", cfg.Seed.Path), slog.String("error", err.Error()))
		}
	}

	return rt, nil
}

// seedFile adds the records of a seed document to store.
func seedFile(ctx context.Context, store *recordstore.Store, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	rows, err := seed.Parse(data)
	if err != nil {
		return err
	}
	added, err := seed.Apply(ctx, store, rows)
	logger.Info("Seed applied", slog.String("path", path), slog.Int("added", added), slog.Int("rows", len(rows)))
	return err
}

// watch runs the storage watcher when the table lives in a file. A watcher
// that cannot start only disables external reloads.
func (rt *runtime) watch(ctx context.Context) error {
	if rt.fs != nil {
		err := watcher.Watch(ctx, rt.fs, rt.store, rt.logger, rt.cfg.Search.Debounce)
		if err == nil {
			return nil
		}
		rt.logger.Warn("watcher stopped", slog.String("error", err.Error()))
	}
	<-ctx.Done()
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	// SSE broker.
	broker := sse.NewBroker(2*time.Second, 30*time.Second)
	defer broker.Close()
	rt.store.OnChange(func(c recordstore.Change) {
		broker.PublishChange(string(c.Kind), c.Record)
	})

	// Build API router.
	apiRouter := api.NewRouter(rt.store, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the table when its file changes on disk.
	g.Go(func() error {
		return rt.watch(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams never end on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the remaining group members once shutdown begins.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watch(gCtx)
	})
	g.Go(func() error {
		rt.logger.Info("MCP server starting on stdio")
		err := mcpserver.New(rt.store).ServeStdio()
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// Import adds the records of a seed document to the configured table and
// returns the number of records added.
func Import(ctx context.Context, path string, opts ...Option) (int, error) {
	rt, err := setup(ctx, opts)
	if err != nil {
		return 0, err
	}
	defer rt.close()

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	rows, err := seed.Parse(data)
	if err != nil {
		return 0, err
	}
	added, err := seed.Apply(ctx, rt.store, rows)
	rt.logger.Info("Import finished", slog.String("path", path), slog.Int("added", added), slog.Int("rows", len(rows)))
	return added, err
}

// Browse opens the terminal table browser.
func Browse(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	refreshed := make(chan struct{}, 1)
	table := view.New(rt.store,
		view.WithDebounce(rt.cfg.Search.Debounce),
		view.WithLogger(rt.logger),
		view.WithOnRefresh(func(models.Result) {
			select {
			case refreshed <- struct{}{}:
			default:
			}
		}),
	)
	defer table.Close()

	// Changes written by another process show up after a reload.
	rt.store.OnChange(func(c recordstore.Change) {
		if c.Kind != recordstore.ChangeReloaded {
			return
		}
		if err := table.Refresh(ctx); err != nil {
			rt.logger.Warn("refresh after reload failed", slog.String("error", err.Error()))
		}
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watch(gCtx)
	})
	g.Go(func() error {
		if err := tui.Run(gCtx, table, refreshed); err != nil {
			return err
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}
