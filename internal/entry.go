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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pagebook/internal/aimerge"
	"github.com/starford/pagebook/internal/aisearch"
	"github.com/starford/pagebook/internal/api"
	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/index"
	"github.com/starford/pagebook/internal/mcpserver"
	"github.com/starford/pagebook/internal/pageservice"
	"github.com/starford/pagebook/internal/persist"
	"github.com/starford/pagebook/internal/sse"
	"github.com/starford/pagebook/internal/storage"
	"github.com/starford/pagebook/internal/templates"
)

// core holds the components shared by the HTTP and MCP front ends.
type core struct {
	logger    *slog.Logger
	kv        storage.KV
	store     *docstore.Store
	catalogue *templates.Catalogue
	bridge    *persist.Bridge
	db        *index.DB
	follower  *index.Follower
	ai        *aisearch.GeminiClient
	svc       *pageservice.Service

	detach []func()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup opens storage, hydrates the store and wires the persistence bridge,
// the search index and the AI merge around it.
func setup(ctx context.Context, app *application) (*core, error) {
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
		slog.String("index_path", cfg.Index.Path),
		slog.String("templates_dir", cfg.Templates.Dir),
		slog.Bool("ai_configured", cfg.AI.APIKey != ""),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c := &core{logger: logger}

	for _, p := range []string{cfg.Storage.Path, cfg.Index.Path} {
		if p == "" || cfg.Storage.Driver == storage.DriverFS && p == cfg.Storage.Path {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	kv, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	c.kv = kv

	c.catalogue, err = templates.NewCatalogue(cfg.Templates.Dir, logger)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init templates: %w", err)
	}

	// Hydrate, then persist once so a freshly seeded workspace is durable.
	state, err := persist.Load(ctx, kv, persist.LoadOptions{
		Seed:        c.catalogue.Default().Instantiate,
		SystemTheme: cfg.Editor.PreferredTheme,
		Logger:      logger,
	})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	c.store = docstore.New(state)
	c.bridge = persist.NewBridge(kv, logger)
	c.detach = append(c.detach, c.bridge.Attach(c.store))
	c.bridge.Save(ctx, c.store.Snapshot())

	var pageIndex index.PageIndex
	if cfg.Index.Path != "" {
		c.db, err = index.Open(cfg.Index.Path)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("init index: %w", err)
		}
		if err := index.Sync(c.db, c.store.Snapshot(), logger); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
		c.follower = index.NewFollower(c.db, logger)
		c.detach = append(c.detach, c.follower.Attach(c.store))
		pageIndex = c.db
	}

	c.ai = aisearch.NewGeminiClient(cfg.AI.ClientOptions(logger))
	merger := aimerge.New(c.store, c.ai, logger)

	c.svc = pageservice.NewService(c.store, c.catalogue, pageIndex, merger)
	return c, nil
}

// background starts the persistence bridge and index follower on g.
func (c *core) background(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return c.bridge.Run(ctx) })
	if c.follower != nil {
		g.Go(func() error { return c.follower.Run(ctx) })
	}
}

// flush writes commits that arrived after the background workers stopped.
func (c *core) flush() {
	c.bridge.Flush(context.Background())
	if c.follower != nil {
		c.follower.Flush()
	}
}

func (c *core) close() {
	for _, d := range c.detach {
		d()
	}
	if c.ai != nil {
		c.ai.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.kv != nil {
		if err := c.kv.Close(); err != nil {
			c.logger.Warn("storage close failed", slog.String("error", err.Error()))
		}
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	c.detach = append(c.detach, broker.Attach(c.store))

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if _, ok := c.store.CurrentPage(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready"}`))
			return
		}
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
	c.background(gCtx, g)

	// Reload user templates and tell connected editors.
	g.Go(func() error {
		return c.catalogue.Watch(gCtx, logger, func() {
			broker.Publish(sse.Event{Type: "templates.updated", Data: c.catalogue.List()})
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	err = g.Wait()
	// Handlers drained by Shutdown may have committed after the bridge stopped.
	c.flush()
	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
// Logs go to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := setup(ctx, app)
	if err != nil {
		return err
	}
	defer c.close()

	srv := mcpserver.New(c.svc, app.version)

	g, gCtx := errgroup.WithContext(ctx)
	c.background(gCtx, g)
	g.Go(func() error { return c.catalogue.Watch(gCtx, c.logger, nil) })
	g.Go(func() error {
		defer cancel()
		c.logger.Info("MCP server starting on stdio")
		return srv.ServeStdio()
	})

	err = g.Wait()
	c.flush()
	if err != nil {
		c.logger.Error("MCP server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
