// cmd/server/main.go
// This is the entry point for the Archery Club scoring API server.
// The cmd/ folder holds executable binaries; internal/ holds the packages they wire together.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trentd187/archery-club/internal/cache"
	"github.com/trentd187/archery-club/internal/config"
	"github.com/trentd187/archery-club/internal/database"
	"github.com/trentd187/archery-club/internal/handlers"
	"github.com/trentd187/archery-club/internal/live"
	"github.com/trentd187/archery-club/internal/logging"
	"github.com/trentd187/archery-club/internal/metrics"
	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/service"
	"github.com/trentd187/archery-club/internal/store"
)

func main() {
	// Load configuration from environment variables (and optionally a .env file).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env, cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := cfg.RequireServer(); err != nil {
		return err
	}

	// ctx is cancelled on SIGINT/SIGTERM, which starts a graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Bring the schema up to date before serving. Already-applied versions are skipped.
	if err := database.RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	checks := map[string]handlers.Check{"database": sqlDB.PingContext}

	// Reads of sessions and rounds go through a cache. Redis is shared between
	// instances; without REDIS_URL each process keeps its own in-memory cache.
	var c cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer r.Close()
		c = r
		checks["redis"] = r.Health
	}
	st := cache.NewStore(store.NewGormStore(db), c, cfg.CacheTTL, log, m)

	// The hub fans out live score updates to SSE subscribers. It runs until ctx ends.
	hub := live.NewHub(16)
	go hub.Run(ctx)

	svc := service.New(service.Deps{
		Store:     st,
		Logger:    log,
		Metrics:   m,
		Publisher: hub,
		Policy:    cfg.Policy(),
	})

	app := fiber.New(fiber.Config{
		AppName: "Archery Club API",
		// Live streams are long-lived; only idle keep-alive connections time out.
		IdleTimeout: 2 * time.Minute,
	})

	// --- Global middleware ---
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(middleware.RequestLogger(log))

	// --- Operational routes (no auth) ---
	app.Get("/health", handlers.HealthCheck(checks))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// --- API routes ---
	// Auth resolves the caller for every API route. Anonymous callers pass through and
	// may only read public data; the service rejects everything else.
	app.Use("/api", middleware.Auth(cfg.JWTSecret, st))
	handlers.Register(app, svc, hub)

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port, "env", cfg.Env, "ranking_policy", cfg.Policy())
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
