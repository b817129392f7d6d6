// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ogfetch/internal/api"
	"github.com/starford/ogfetch/internal/cache"
	"github.com/starford/ogfetch/internal/checksum"
	"github.com/starford/ogfetch/internal/fetcher"
	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/ogservice"
	"github.com/starford/ogfetch/internal/scanner"
	"github.com/starford/ogfetch/internal/sse"
	"github.com/starford/ogfetch/internal/storage"
	"github.com/starford/ogfetch/internal/watch"
)

// watchQueueSize bounds the paths waiting for an automatic fetch.
const watchQueueSize = 256

// components holds the wired services shared by every command.
type components struct {
	cfg     *Config
	logger  *slog.Logger
	out     io.Writer
	store   *storage.FS
	db      *index.DB
	svc     *ogservice.Service
	scanner *scanner.Scanner
}

// build applies opts, validates the configuration and wires storage, the
// fetch history, the fetcher and the document service. onEvent may be nil.
func build(opts []Option, onEvent ogservice.EventFunc) (*components, error) {
	app := &application{logOut: os.Stdout, out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	fields := cfg.Fields.Table()
	client := fetcher.New(fetcher.Options{
		APIURL:  cfg.OpenGraph.Endpoint(),
		APIKey:  cfg.OpenGraph.APIKey,
		Retries: cfg.OpenGraph.Retries,
		Backoff: cfg.OpenGraph.Backoff(),
		Logger:  logger,
	})
	svc := ogservice.New(store, client, ogservice.Options{
		Fields:  fields,
		Policy:  cfg.Policy,
		Cache:   cache.New(cfg.OpenGraph.CacheTTL(), nil),
		History: db,
		Logger:  logger,
		OnEvent: onEvent,
	})
	sc, err := scanner.New(store, scanner.Options{
		Include: cfg.Scan.Include,
		Exclude: cfg.Scan.Exclude,
		Fields:  fields,
		Logger:  logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &components{
		cfg:     cfg,
		logger:  logger,
		out:     app.out,
		store:   store,
		db:      db,
		svc:     svc,
		scanner: sc,
	}, nil
}

func (c *components) Close() error {
	return c.db.Close()
}

// wantsFetch reports whether a changed document should be fetched
// automatically. A document whose content matches the checksum recorded by
// its last fetch is skipped, so the service's own writes never re-trigger it.
func (c *components) wantsFetch(p string) bool {
	if !c.scanner.Match(p) {
		return false
	}
	data, err := c.store.Read(p)
	if err != nil {
		return false
	}
	info, ok := c.scanner.Inspect(p, string(data))
	if !ok || info.HasError {
		return false
	}
	if !scanner.Eligible(info, c.svc.Policy(), c.cfg.Batch.RefreshAfter, time.Now()) {
		return false
	}
	if row, err := c.db.Get(p); err == nil && row.Checksum == checksum.Sum(data) {
		return false
	}
	return true
}

// onVaultEvent feeds watcher events into the fetch queue and keeps the
// history in step with deletions.
func (c *components) onVaultEvent(q *watch.Queue) watch.EventCallback {
	return func(kind, p string) {
		switch kind {
		case watch.Deleted:
			if err := c.db.Delete(p); err != nil {
				c.logger.Warn("history delete failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		case watch.Created, watch.Updated:
			if !c.wantsFetch(p) {
				return
			}
			if !q.Enqueue(p) {
				c.logger.Warn("watch queue full, dropping document", slog.String("path", p))
			}
		}
	}
}

func (c *components) autoFetch(ctx context.Context, p string) {
	if _, err := c.svc.ProcessDocument(ctx, p, ogservice.ProcessOptions{}); err != nil {
		c.logger.Warn("automatic fetch failed", slog.String("path", p), slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server, and the vault watcher when enabled, and blocks
// until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SSE broker.
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	c, err := build(opts, broker.Notify)
	if err != nil {
		return err
	}
	defer c.Close()
	cfg, logger := c.cfg, c.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("api_url", cfg.OpenGraph.Endpoint()),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))
	if cfg.OpenGraph.APIKey == "" {
		logger.Warn("opengraph.api_key is empty; every fetch will fail with MISSING_CREDENTIAL")
	}

	// Drop history rows for documents deleted while the server was down.
	if n, err := index.Prune(c.db, c.store, logger); err != nil {
		logger.Warn("history prune failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("history pruned", slog.Int("removed", n))
	}

	h := api.NewHandler(c.svc, c.scanner, c.db, api.BatchDefaults{
		Delay:        cfg.DelayFor(),
		RefreshAfter: cfg.Batch.RefreshAfter,
	})
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := c.db.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
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

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Fetch documents that appear or change in the vault.
	if cfg.Watch.Enabled {
		queue := watch.NewQueue(watchQueueSize, cfg.DelayFor(), c.autoFetch)
		g.Go(func() error {
			return queue.Run(gCtx)
		})
		g.Go(func() error {
			return watch.Watch(gCtx, c.store.Root(), cfg.Watch.Debounce, logger, c.onVaultEvent(queue))
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

	// Handle shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Let the document in flight finish before the history is closed.
		if b := c.svc.ActiveBatch(); b != nil {
			b.Cancel()
			select {
			case <-b.Done():
			case <-shutdownCtx.Done():
				logger.Warn("batch did not stop before shutdown timeout", slog.String("run_id", b.ID()))
			}
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
