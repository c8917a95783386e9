// Command taskrelayd is the task backend server. It exposes the task tools
// over HTTP for the taskrelay agent (and any other MCP-style client).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/taskrelay/taskrelay/internal/backend"
	"github.com/taskrelay/taskrelay/internal/config"
	"github.com/taskrelay/taskrelay/internal/health"
	"github.com/taskrelay/taskrelay/internal/observe"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const (
	defaultListenAddr = ":8000"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "taskrelayd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "taskrelayd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}

	slog.Info("taskrelayd starting",
		"version", version,
		"config", *configPath,
		"listen_addr", addr,
		"store", storeKind(cfg),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "taskrelayd",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Task store ────────────────────────────────────────────────────────────
	store, probes, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise task store", "err", err)
		return 1
	}
	defer cleanup()

	// ── HTTP server ───────────────────────────────────────────────────────────
	server := backend.NewServer(store, backend.WithReadiness(health.New(probes...)))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
		var err error
		if cfg.Server.TLS != nil {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildStore constructs the configured task store plus its readiness probes
// and a cleanup function to run at shutdown.
func buildStore(ctx context.Context, cfg *config.Config) (backend.Store, []health.Checker, func(), error) {
	switch storeKind(cfg) {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Backend.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		store := backend.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		slog.Info("postgres store ready")
		probes := []health.Checker{health.Ping("database", pool.Ping)}
		return store, probes, pool.Close, nil

	default:
		store := backend.NewMemStore()
		probes := []health.Checker{health.Ping("store", func(ctx context.Context) error {
			_, err := store.List(ctx, backend.FilterAll)
			return err
		})}
		return store, probes, func() {}, nil
	}
}

func storeKind(cfg *config.Config) config.StoreKind {
	if cfg.Backend.Store == "" {
		return config.StoreMemory
	}
	return cfg.Backend.Store
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
