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

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/dataobj"
	"github.com/starford/quire/internal/docstore"
	"github.com/starford/quire/internal/folders"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/ingest"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/pocket"
	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/search/elastic"
	"github.com/starford/quire/internal/sse"
	"github.com/starford/quire/internal/storage"
)

// components is the wired object graph shared by every entry point.
type components struct {
	logger    *slog.Logger
	db        *index.DB
	svc       *dataobj.Service
	bookmarks *ingest.Pipeline
	session   *pocket.Session
	syncer    *ingest.Syncer
}

func (c *components) Close() error {
	return c.db.Close()
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	logger := newLogger(app.config.App, app.logOutput)
	slog.SetDefault(logger)
	return app, logger, nil
}

// build opens the stores and wires the façade and the ingestion pipeline.
// hook, if non-nil, receives every change event.
func build(cfg *Config, logger *slog.Logger, hook dataobj.EventHook) (*components, error) {
	if err := os.MkdirAll(cfg.Data.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Data.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	engine, err := searchEngine(cfg.Search, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init search: %w", err)
	}

	docs := docstore.New(fs)
	dirs := folders.New(fs, docs)
	var svcOpts []dataobj.Option
	if hook != nil {
		svcOpts = append(svcOpts, dataobj.WithEventHook(hook))
	}
	svc := dataobj.New(docs, dirs, db, search.NewSynchronizer(engine, logger), logger, svcOpts...)

	extractor, err := ingest.NewExtractor(cfg.Ingest.Extractor)
	if err != nil {
		db.Close()
		return nil, err
	}
	fetchOpts := []ingest.FetcherOption{
		ingest.WithTimeout(cfg.Ingest.Timeout),
		ingest.WithMaxBytes(cfg.Ingest.MaxBytes),
	}
	if cfg.Ingest.UserAgent != "" {
		fetchOpts = append(fetchOpts, ingest.WithUserAgent(cfg.Ingest.UserAgent))
	}
	pipeline := ingest.NewPipeline(ingest.NewHTTPFetcher(fetchOpts...), extractor, ingest.NewMarkdownConverter(), svc, logger)

	c := &components{logger: logger, db: db, svc: svc, bookmarks: pipeline}
	if cfg.Pocket.Enabled {
		client, err := pocket.NewClient(cfg.Pocket.BaseURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init pocket: %w", err)
		}
		c.session = pocket.NewSession(client, db, cfg.Pocket.RedirectURI)
		reconcile := func(ctx context.Context) error {
			_, err := svc.Rebuild(ctx, false)
			return err
		}
		c.syncer = ingest.NewSyncer(pocket.NewSource(client, c.session), pipeline, db, cfg.Pocket.Rate, logger,
			ingest.WithReconcile(reconcile))
	}
	return c, nil
}

// searchEngine returns the configured full-text engine, or nil when search is disabled.
func searchEngine(cfg SearchConfig, db *index.DB) (search.Engine, error) {
	switch cfg.Engine {
	case SearchSQLite:
		return index.NewFullText(db), nil
	case SearchElasticsearch:
		return elastic.New(elastic.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Index:     cfg.Index,
		})
	default:
		return nil, nil
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_path", cfg.Data.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("search_engine", cfg.Search.Engine),
		slog.Bool("pocket", cfg.Pocket.Enabled),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := build(cfg, logger, broker.PublishChange)
	if err != nil {
		return err
	}
	defer c.Close()

	// Bring the indexes in line with edits made while the server was down.
	if _, err := c.svc.Rebuild(ctx, false); err != nil {
		logger.Warn("initial reindex failed", slog.String("error", err.Error()))
	}

	handler := api.NewHandler(c.svc, c.bookmarks, c.session, c.syncer)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			if err := c.svc.Watch(gCtx, cfg.Data.Path); err != nil {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
	}

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Returning an error cancels gCtx so the watcher stops too.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown requested")

// Reindex rebuilds the metadata and search indexes from the document tree.
// With full set every document is re-projected regardless of its checksum.
func Reindex(ctx context.Context, full bool, opts ...Option) (dataobj.RebuildReport, error) {
	app, logger, err := setup(opts)
	if err != nil {
		return dataobj.RebuildReport{}, err
	}
	c, err := build(app.config, logger, nil)
	if err != nil {
		return dataobj.RebuildReport{}, err
	}
	defer c.Close()
	return c.svc.Rebuild(ctx, full)
}

// ServeMCP exposes the façade as MCP tools on stdin/stdout until the client
// disconnects. Logs go to stderr unless WithLogOutput says otherwise.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := build(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.svc.Rebuild(ctx, false); err != nil {
		logger.Warn("initial reindex failed", slog.String("error", err.Error()))
	}
	logger.Info("Starting MCP server on stdio")
	return mcpserver.New(c.svc, c.bookmarks).ServeStdio()
}
