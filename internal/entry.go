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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/pledge/internal/api"
	"github.com/starford/pledge/internal/apperr"
	"github.com/starford/pledge/internal/configwatch"
	"github.com/starford/pledge/internal/market"
	"github.com/starford/pledge/internal/mcpserver"
	"github.com/starford/pledge/internal/metrics"
	"github.com/starford/pledge/internal/oracle"
	"github.com/starford/pledge/internal/sse"
	"github.com/starford/pledge/internal/store"
	pkgconfig "github.com/starford/pledge/pkg/config"
)

const sseHeartbeat = 15 * time.Second

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts...)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger, closeLog := newLogger(cfg.App, os.Stdout)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("auth_enabled", cfg.Auth.AuthEnabled()),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled))

	// SSE broker.
	var brokerOpts []sse.Option
	var engineOpts []market.Option
	if cfg.Metrics.Enabled {
		m := metrics.Default()
		brokerOpts = append(brokerOpts, sse.WithClientGauge(m.SetSSEClients))
		engineOpts = append(engineOpts, market.WithRecorder(m))
	}
	broker := sse.NewBroker(sseHeartbeat, brokerOpts...)
	defer broker.Close()
	engineOpts = append(engineOpts, market.WithPublisher(broker))

	st, engine, prices, err := openMarket(cfg, logger, engineOpts...)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := autoInitialize(ctx, cfg, engine, logger); err != nil {
		return err
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled() {
		limiter = api.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}
	apiRouter := api.NewRouter(engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, limiter)

	// Build chi router.
	r := newRootRouter(cfg.App.HTTP)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := st.View(r.Context(), func(store.Tx) error { return nil }); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload the loan policy and oracle prices.
	if app.configPath != "" {
		g.Go(func() error {
			if err := configwatch.Watch(gCtx, app.configPath, logger, configReloader(engine, prices)); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
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

		// SSE streams never finish on their own.
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they
// never interleave with the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts...)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger, closeLog := newLogger(cfg.App, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	st, engine, _, err := openMarket(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := autoInitialize(ctx, cfg, engine, logger); err != nil {
		return err
	}

	logger.Info("MCP server starting", slog.String("sqlite_path", cfg.SQLite.Path))
	return mcpserver.New(engine).ServeStdio()
}

// newLogger builds the JSON logger, teeing into a rotating file when one is
// configured. The returned func closes the file.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, func()) {
	closeFn := func() {}
	if cfg.LogFile.Path != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
		out = io.MultiWriter(out, file)
		closeFn = func() { _ = file.Close() }
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closeFn
}

// openMarket opens the store and builds the engine and its oracle from
// configuration.
func openMarket(cfg *Config, logger *slog.Logger, extra ...market.Option) (*store.Store, *market.Engine, *oracle.Oracle, error) {
	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init store: %w", err)
	}

	prices := oracle.New(cfg.Oracle.Source(), logger)
	opts := []market.Option{
		market.WithLogger(logger),
		market.WithParams(cfg.Market.Params()),
		market.WithPolicy(cfg.Market.Policy.Policy()),
		market.WithAppraiser(prices),
	}
	opts = append(opts, extra...)

	return st, market.NewEngine(st, opts...), prices, nil
}

// autoInitialize creates the protocol registry from configuration on first start.
func autoInitialize(ctx context.Context, cfg *Config, engine *market.Engine, logger *slog.Logger) error {
	if !cfg.Protocol.AutoInitialize() {
		return nil
	}
	p := cfg.Protocol
	_, err := engine.Initialize(ctx, market.Signers{p.Authority}, p.Authority, p.Treasury)
	switch {
	case err == nil:
		logger.Info("protocol initialized from config", slog.String("authority", p.Authority))
		return nil
	case errors.Is(err, apperr.ErrAlreadyExists):
		return nil
	default:
		return fmt.Errorf("initialize protocol: %w", err)
	}
}

// configReloader applies the loan policy and oracle prices from a changed
// config file. Nothing is applied unless the whole file validates.
func configReloader(engine *market.Engine, prices *oracle.Oracle) configwatch.ApplyFunc {
	return func(data []byte) error {
		cfg := NewDefaultConfig()
		if err := pkgconfig.Parse(data, cfg); err != nil {
			return err
		}
		engine.SetPolicy(cfg.Market.Policy.Policy())
		prices.Reprice(cfg.Oracle.DefaultValue, cfg.Oracle.Values)
		return nil
	}
}

func newRootRouter(cfg HTTPConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
