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

	"github.com/starford/raido/internal/crawler"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/queue"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/status"
	"github.com/starford/raido/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("github", cfg.GitHub.Enabled),
		slog.Bool("codeberg", cfg.Codeberg.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the SQLite store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Assemble per-platform crawl specs and credentials.
	platforms := make(map[models.Platform]crawler.PlatformSpec)
	tokens := make(map[models.Platform]string)
	for p, pc := range cfg.Platforms() {
		platforms[p] = crawler.PlatformSpec{
			SearchBase: pc.SearchBase,
			RawBase:    pc.RawBase,
			Query:      pc.Query,
		}
		tokens[p] = pc.Token
	}

	searchClient := crawler.NewSearchClient(tokens)

	// Liveness probes: each enabled platform must answer one request
	// before any crawling starts. Bad credentials abort the run.
	for p, spec := range platforms {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := searchClient.Check(probeCtx, p, crawler.ProbeURL(p, spec))
		cancel()
		if err != nil {
			return fmt.Errorf("platform %s unusable: %w", p, err)
		}
		logger.Info("Platform liveness probe passed", slog.String("platform", string(p)))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Durable work queues, one consumer each.
	searchQ := queue.New(crawler.SearchQueue, db, logger)
	manifestQ := queue.New(crawler.ManifestQueue, db, logger)

	cr := crawler.New(db, searchClient, crawler.NewContentFetcher(), searchQ, manifestQ, broker, logger, crawler.Config{
		Platforms:         platforms,
		NextPageDelay:     cfg.Crawl.NextPageDelay.Std(),
		RateLimitFallback: cfg.Crawl.RateLimitFallback.Std(),
	})

	// Status surface.
	statusHandler := status.NewHandler(db, []string{crawler.SearchQueue, crawler.ManifestQueue}, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", status.NewRouter(statusHandler, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Queue consumers.
	g.Go(func() error {
		return searchQ.Run(gCtx, cr.HandleSearch)
	})
	g.Go(func() error {
		return manifestQ.Run(gCtx, cr.HandleManifest)
	})

	// Crawl schedulers. The first top sweep starts immediately; the
	// exhaustive sweep advances one creation-date window per tick and
	// cycles forever.
	g.Go(func() error {
		if err := cr.EnqueueTopSweeps(); err != nil {
			logger.Warn("initial top sweep enqueue failed", slog.String("error", err.Error()))
		}
		ticker := time.NewTicker(cfg.Crawl.TopInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if err := cr.EnqueueTopSweeps(); err != nil {
					logger.Warn("top sweep enqueue failed", slog.String("error", err.Error()))
				}
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Crawl.AllInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if err := cr.EnqueueNextWindow(); err != nil {
					logger.Warn("window sweep enqueue failed", slog.String("error", err.Error()))
				}
			}
		}
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
