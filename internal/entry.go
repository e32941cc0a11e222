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

	"github.com/starford/kbpipe/internal/api"
	"github.com/starford/kbpipe/internal/deploy"
	"github.com/starford/kbpipe/internal/index"
	"github.com/starford/kbpipe/internal/mcpserver"
	"github.com/starford/kbpipe/internal/pipeline"
	"github.com/starford/kbpipe/internal/registry"
	"github.com/starford/kbpipe/internal/scanner"
	"github.com/starford/kbpipe/internal/sse"
	"github.com/starford/kbpipe/internal/storage"
)

// App holds the pipeline components built from a Config.
type App struct {
	config  *Config
	logger  *slog.Logger
	version string
	service *pipeline.Service
	areas   []index.Area
	db      *index.DB
}

// New builds the application from the given options.
func New(opts ...Option) (*App, error) {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger
	if logger == nil {
		out := app.logOutput
		if out == nil {
			out = os.Stderr
		}
		logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	repo := &cfg.Repository
	logger.Debug("Configuration loaded",
		slog.String("root", repo.Root),
		slog.String("registry_mode", cfg.Registry.Mode),
		slog.String("sqlite_path", repo.Path(cfg.SQLite.Path)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	open := func(dir string) (*storage.FS, error) {
		fs, err := storage.NewFS(repo.Path(dir))
		if err != nil {
			return nil, fmt.Errorf("init storage %s: %w", dir, err)
		}
		return fs, nil
	}
	stagingFS, err := open(repo.StagingDir)
	if err != nil {
		return nil, err
	}
	articlesFS, err := open(repo.ArticlesDir)
	if err != nil {
		return nil, err
	}
	deployFS, err := open(repo.DeployDir)
	if err != nil {
		return nil, err
	}

	stagingScanner := scanner.New(stagingFS, cfg.Staging.Categories, logger)
	storeScanner := scanner.New(articlesFS, nil, logger)

	pipeOpts := pipeline.Options{
		Staging:     stagingScanner,
		Store:       storeScanner,
		PublishList: repo.Path(cfg.Staging.PublishFile),
		Packager:    deploy.NewPackager(deployFS, logger),
		VersionFile: repo.Path(repo.VersionFile),
		LockFile:    repo.Path(repo.LockFile),
		Logger:      logger,
	}
	switch cfg.Registry.Mode {
	case registry.ModeSnapshot:
		versionsFS, err := open(repo.VersionsDir)
		if err != nil {
			return nil, err
		}
		snap := registry.NewSnapshot(versionsFS)
		pipeOpts.Registry = snap
		pipeOpts.Policy = deploy.NewDirectoryDiff(snap)
	default:
		csv := registry.NewCSV(repo.Path(cfg.Registry.CSVPath), repo.Path(cfg.Registry.ChangelogPath), repo.ArticlesDir)
		pipeOpts.Registry = csv
		pipeOpts.Policy = deploy.NewFlagDiff(csv, articlesFS, logger)
	}

	a := &App{
		config:  cfg,
		logger:  logger,
		version: app.version,
		service: pipeline.New(pipeOpts),
		areas: []index.Area{
			{Name: index.AreaStaging, Scanner: stagingScanner},
			{Name: index.AreaStore, Scanner: storeScanner},
		},
	}

	if app.withIndex {
		db, err := index.Open(repo.Path(cfg.SQLite.Path))
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		a.db = db
		a.service.AttachIndex(db)
	}
	return a, nil
}

// Service returns the pipeline service.
func (a *App) Service() *pipeline.Service { return a.service }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Close releases the catalog index.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Reindex reconciles the catalog with the staging area and the store.
func (a *App) Reindex() (index.Stats, error) {
	if a.db == nil {
		return index.Stats{}, errors.New("catalog index is not open")
	}
	st, err := index.Sync(a.db, a.areas, a.logger)
	if err != nil {
		return st, err
	}
	a.logger.Info("index synced",
		slog.Int("indexed", st.Indexed), slog.Int("removed", st.Removed), slog.Int("total", st.Total))
	return st, nil
}

// Watch keeps the catalog fresh until ctx is cancelled.
func (a *App) Watch(ctx context.Context, cb index.EventCallback) error {
	if a.db == nil {
		return errors.New("catalog index is not open")
	}
	return index.Watch(ctx, a.db, a.areas, a.logger, cb)
}

// ServeMCP serves the MCP tools on stdin/stdout.
func (a *App) ServeMCP() error {
	if a.db != nil {
		if _, err := a.Reindex(); err != nil {
			a.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}
	return mcpserver.New(a.service, a.version).ServeStdio()
}

// Handler builds the HTTP handler: health checks plus the API under /api.
// events may be nil.
func (a *App) Handler(events http.Handler) http.Handler {
	cfg := a.config
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(a.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))
	return r
}

// Serve runs the HTTP status API and the index watcher until ctx is
// cancelled or a shutdown signal arrives. Index changes are streamed on
// /api/events.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.config
	logger := a.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.Handler(broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if a.db != nil {
		if _, err := a.Reindex(); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
		g.Go(func() error {
			return a.Watch(gCtx, broker.ArticleChanged)
		})
	}

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

		// Ends open event streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Run builds the application with the catalog index and serves it.
func Run(ctx context.Context, opts ...Option) error {
	a, err := New(append(opts, WithIndex())...)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}
