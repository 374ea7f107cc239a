// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/dagaz/internal/api"
	"github.com/starford/dagaz/internal/mcpserver"
	"github.com/starford/dagaz/internal/planner"
	"github.com/starford/dagaz/internal/session"
	"github.com/starford/dagaz/internal/sse"
	"github.com/starford/dagaz/internal/storage"
)

// runtime is the wired service graph shared by every entry point.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	store    storage.Provider
	planner  *planner.Planner
	sessions *session.Manager
}

func setup(ctx context.Context, opts []Option, notify session.Notifier) (*runtime, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
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
		slog.String("gemini_model", cfg.Gemini.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	gen := app.generator
	if gen == nil {
		gen, err = newGenerator(ctx, cfg.Gemini, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if notify != nil {
		sessionOpts = append(sessionOpts, session.WithNotifier(notify))
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		planner:  planner.New(gen, planner.WithTimeout(cfg.Gemini.Timeout), planner.WithLogger(logger)),
		sessions: session.NewManager(store, sessionOpts...),
	}, nil
}

// newGenerator returns the Gemini generator, or one that always fails when no
// API key is configured so the rest of the API stays usable.
func newGenerator(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (planner.Generator, error) {
	if cfg.APIKey == "" {
		logger.Warn("gemini api key not configured; planning requests will fail")
		return planner.GeneratorFunc(func(context.Context, planner.Prompt) (string, error) {
			return "", errors.New("gemini api key not configured")
		}), nil
	}
	gen, err := planner.NewGeminiGenerator(ctx, planner.GeminiConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini: %w", err)
	}
	return gen, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := setup(ctx, opts, broker)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	cfg, logger := rt.cfg, rt.logger

	h := api.NewHandler(rt.planner, rt.sessions, api.WithFreeBusy(cfg.FreeBusy.Options()))
	apiRouter := api.NewRouter(h, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		DefaultUser: cfg.Auth.DefaultUser,
	}, broker.Handler(api.UserFrom))

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.store.Load(req.Context(), cfg.Auth.DefaultUser); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"storage unavailable"}`))
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

	// Watch file-backed documents for edits made outside this process.
	if fs, ok := rt.store.(*storage.FS); ok {
		g.Go(func() error {
			err := storage.Watch(gCtx, fs, logger, func(_ string, user string) {
				rt.sessions.ExternalChange(gCtx, user)
			})
			if err != nil {
				logger.Warn("watcher disabled", slog.String("error", err.Error()))
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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	srv := mcpserver.New(rt.planner, rt.sessions, mcpserver.Config{
		DefaultUser: rt.cfg.Auth.DefaultUser,
		FreeBusy:    rt.cfg.FreeBusy.Options(),
	})
	rt.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// PlanOnce plans message against user's stored collection and writes the
// plan as indented JSON to out. Nothing is applied.
func PlanOnce(ctx context.Context, user, message string, out io.Writer, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	if user == "" {
		user = rt.cfg.Auth.DefaultUser
	}
	col, err := rt.sessions.Snapshot(ctx, user)
	if err != nil {
		return err
	}
	plan, err := rt.planner.Plan(ctx, planner.Request{
		Message:  message,
		Snapshot: col.Entities,
		Today:    time.Now().In(rt.cfg.FreeBusy.Options().Location),
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
