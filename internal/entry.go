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

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/configwatch"
	"github.com/starford/ansuz/internal/monitor"
	"github.com/starford/ansuz/internal/reconciler"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/settings"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/vault"
)

const monitorInterval = 5 * time.Second

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
		slog.String("store_path", cfg.Store.Path),
		slog.Bool("auth_enabled", cfg.Auth.AuthEnabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the card store.
	store, err := cardstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open card store: %w", err)
	}
	defer store.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Connectivity monitor. The probe short-circuits to disconnected when no
	// API key is configured, so an unconfigured daemon never touches the
	// network.
	mon := monitor.New(monitorInterval, func(ctx context.Context) monitor.State {
		s, err := store.Settings()
		if err != nil || !s.Configured() {
			return monitor.StateDisconnected
		}
		if vault.New(s.APIURL, s.APIKey, logger).Probe(ctx) {
			return monitor.StateConnected
		}
		return monitor.StateDisconnected
	}, broker.PublishStatus, logger)

	sessions := session.New(store, broker, logger)
	rec := reconciler.New(store, mon, broker, logger)

	h := api.NewHandler(store, sessions, rec, mon, func(s *settings.Settings) api.VaultBrowser {
		return vault.New(s.APIURL, s.APIKey, logger)
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

	// Connectivity monitor loop.
	g.Go(func() error {
		return mon.Run(gCtx)
	})

	// Auto-sync loop.
	g.Go(func() error {
		return rec.Run(gCtx)
	})

	// Watch the bootstrap config file; edits trigger an immediate
	// connectivity re-check.
	if cfg.Watch.Enabled && app.configPath != "" {
		g.Go(func() error {
			return configwatch.Watch(gCtx, app.configPath, logger, mon.Recheck)
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
