// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command console is the entry point for the Motorhub console session service.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool) and Redis.
//  4. Run database migrations (idempotent).
//  5. Wire the identity client, object storage and the session manager.
//  6. Restore the persisted session.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/motorhub/data"
	"github.com/taibuivan/motorhub/internal/api"
	"github.com/taibuivan/motorhub/internal/platform/config"
	"github.com/taibuivan/motorhub/internal/platform/constants"
	"github.com/taibuivan/motorhub/internal/platform/identity"
	"github.com/taibuivan/motorhub/internal/platform/localstate"
	"github.com/taibuivan/motorhub/internal/platform/middleware"
	"github.com/taibuivan/motorhub/internal/platform/migration"
	"github.com/taibuivan/motorhub/internal/platform/objectstore"
	pgstore "github.com/taibuivan/motorhub/internal/platform/postgres"
	redisstore "github.com/taibuivan/motorhub/internal/platform/redis"
	"github.com/taibuivan/motorhub/internal/platform/sec"
	"github.com/taibuivan/motorhub/internal/users/profile"
	"github.com/taibuivan/motorhub/internal/users/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("[Motorhub] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Bounded so that misconfiguration fails fast instead of hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL & Redis ─────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_error", slog.Any("error", cerr))
		}
	}()

	// ── 4. Migrations ─────────────────────────────────────────────────────
	source := migration.Source{Path: cfg.MigrationPath, Embedded: data.Migrations, Dir: data.MigrationsDir}
	must(log, migration.RunUp(cfg.DatabaseURL, source, log), "run migrations")

	// ── 5. Domain Wiring ──────────────────────────────────────────────────
	identityClient := identity.NewClient(identity.Options{
		BaseURL:    cfg.BackendURL,
		AnonKey:    cfg.BackendAnonKey,
		Timeout:    cfg.HTTPTimeout,
		StorageKey: cfg.SessionStorageKey,
		Storage:    identity.NewRedisStorage(rdb),
		Bus:        identity.NewRedisBus(rdb, cfg.SessionStorageKey, log),
		Inspector:  sec.NewTokenInspector(cfg.JWTSecret),
		Logger:     log,
	})
	must(log, identityClient.Start(startupCtx), "subscribe to session events")
	defer identityClient.Close()

	files := objectstore.NewClient(objectstore.Options{
		BaseURL: cfg.BackendURL,
		APIKey:  cfg.BackendAnonKey,
		Timeout: cfg.HTTPTimeout,
	})

	manager, err := session.New(session.Dependencies{
		Identity: identityClient,
		Profiles: profile.NewPostgresRepository(pool),
		Files:    files,
		Local:    localstate.NewPurger(rdb, cfg.LegacyKeyPatterns, log),
		Logger:   log,
	}, session.Options{
		AvatarBucket:   cfg.AvatarBucket,
		SignupRedirect: cfg.SignupRedirect(),
		ResetRedirect:  cfg.ResetRedirect(),
		ReadRetries:    cfg.ReadRetries,
		ReadRetryBase:  cfg.ReadRetryBase,
		FetchTimeout:   cfg.HTTPTimeout,
	})
	must(log, err, "create session manager")
	defer manager.Close()

	// ── 6. Session Restore ────────────────────────────────────────────────
	// A failed restore leaves the console signed out; it never stops startup.
	if err := manager.Bootstrap(startupCtx); err != nil {
		log.Warn("session_restore_failed", slog.Any("error", err))
	}

	// ── 7. HTTP Server ────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(log,
		api.Check{Name: "postgres", Probe: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) }},
		api.Check{Name: "redis", Probe: func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }},
	)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	server := api.NewServer(serverCtx, cfg, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Session:   session.NewHandler(manager, middleware.CredentialRateLimit(serverCtx)),
	})

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	// Closing the manager ends every open event stream before the server drains.
	manager.Close()

	log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(
		slog.String("app", constants.AppName),
		slog.String("version", constants.AppVersion),
	)
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
