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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/codetape/codetape/internal/api"
	"github.com/codetape/codetape/internal/apperr"
	"github.com/codetape/codetape/internal/mcpserver"
	"github.com/codetape/codetape/internal/metrics"
	"github.com/codetape/codetape/internal/playback"
	"github.com/codetape/codetape/internal/reconstruct"
	"github.com/codetape/codetape/internal/recorder"
	"github.com/codetape/codetape/internal/replayservice"
	"github.com/codetape/codetape/internal/sse"
	"github.com/codetape/codetape/internal/timeline"
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
		slog.String("workspace_root", cfg.Workspace.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("durability", cfg.Store.Durability),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the workspace directory exists.
	if err := os.MkdirAll(cfg.Workspace.Root, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	// Open the timeline store.
	store, err := timeline.Open(cfg.SQLite.Path, timeline.Options{
		Durability:      timeline.DurabilityMode(cfg.Store.Durability),
		FlushInterval:   cfg.Store.FlushInterval,
		MaxContentBytes: cfg.Store.MaxContentBytes,
		MaxSessionBytes: cfg.Store.MaxSessionBytes,
	})
	if err != nil {
		return fmt.Errorf("init timeline store: %w", err)
	}
	defer store.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// SSE broker for live recording activity.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Core components.
	engine := reconstruct.New(store, nil)
	playbacks := playback.NewManager(store, playback.Options{
		Quantum:    cfg.Playback.Quantum,
		Epsilon:    cfg.Playback.EpsilonMS,
		SeekPolicy: playback.SeekPolicy(cfg.Playback.SeekPolicy),
	}, m)
	defer playbacks.StopAll()

	rec := recorder.New(store, recorder.Policy{
		Every:    cfg.Capture.CheckpointEvery,
		Interval: cfg.Capture.CheckpointInterval,
	}, cfg.Store.MaxContentBytes, logger, broker, m)

	svc := replayservice.New(store, engine, playbacks, rec, m)

	if app.mcp {
		// MCP surface is exclusive: stdio transport, no HTTP server.
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	if cfg.Workspace.AutoStart {
		if _, err := store.BeginSession(cfg.Workspace.Root); err != nil && !errors.Is(err, apperr.ErrSessionOpen) {
			return fmt.Errorf("begin session: %w", err)
		}
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, m)

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

	// Prometheus metrics.
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gCtx := errgroup.WithContext(runCtx)

	// Start the change detector feeding the recorder.
	changes := make(chan recorder.Change, 256)
	detector, err := recorder.NewFSDetector(cfg.Workspace.Root, logger)
	if err != nil {
		return fmt.Errorf("init detector: %w", err)
	}
	g.Go(func() error {
		return detector.Watch(gCtx, changes)
	})
	g.Go(func() error {
		return rec.Consume(gCtx, changes)
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
		// Unblocks the detector and recorder goroutines.
		cancelRun()

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
