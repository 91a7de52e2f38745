// @title           Xplorixa Portal API
// @version         1.0.0
// @description     User registration, admin console and the key-gated user data gateway.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "Session token: 'Bearer {token}'"
// @securityDefinitions.apiKey  APIKey
// @in                          header
// @name                         x-api-key
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and pprof are served on dedicated side ports (PORTAL_TELEMETRY_METRICS_PROMETHEUS_PORT, default 9090; PORTAL_TELEMETRY_PROFILING_PORT, default 6060), never through the Gin router.

// Package main is the entry point for the portal server binary. It dispatches three
// subcommands (serve, migrate and version) with a switch on os.Args. serve runs
// migrations on startup, so a fresh container needs no separate migration step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the dedicated profiling port, never on the API listener.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/xplorixa/portal/internal/api"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/counter"
	"github.com/xplorixa/portal/internal/db"
	"github.com/xplorixa/portal/internal/safego"
	"github.com/xplorixa/portal/internal/telemetry"

	// Storage backends register themselves with storage.Register.
	_ "github.com/xplorixa/portal/internal/storage/azure"
	_ "github.com/xplorixa/portal/internal/storage/gcs"
	_ "github.com/xplorixa/portal/internal/storage/local"
	_ "github.com/xplorixa/portal/internal/storage/s3"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to read .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down|version>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Xplorixa Portal v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	logOut, closeLog, err := telemetry.OpenLogOutput(cfg.Logging.Output)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck
	telemetry.SetupLogger(logOut, cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry.Tracing, cfg.Telemetry.ServiceName, version)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "dbname", cfg.Database.Name,
		"user", cfg.Database.User, "sslmode", cfg.Database.SSLMode)
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(ctx, database, 15*time.Second)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The gateway limiter fails open and the counter reports 503 until Redis returns.
		slog.Warn("redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}

	counterStore := counter.NewStore(rdb, cfg.Redis.CounterKey)
	hub := counter.NewHub(counterStore, 30*time.Second)
	safego.Go("counter-hub", func() { hub.Run(ctx) })

	router, bgServices, err := api.NewRouter(cfg, api.Infra{
		DB:      database,
		Redis:   rdb,
		Counter: counterStore,
		Hub:     hub,
	})
	if err != nil {
		return err
	}

	if cfg.WatchAdminEmails(bgServices.AdminResolver().SetAdminEmails) {
		slog.Info("watching config file for admin allow-list changes")
	}

	var handler http.Handler = router
	if cfg.Telemetry.Tracing.Enabled {
		handler = otelhttp.NewHandler(router, "portal.http")
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server",
			"addr", server.Addr, "base_url", cfg.Server.BaseURL,
			"storage_backend", cfg.Storage.DefaultBackend, "tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	var sideServers []*http.Server

	// Metrics live on their own port so the scrape path stays off the public ingress.
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		sideServers = append(sideServers, &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
	}

	if cfg.Telemetry.Profiling.Enabled {
		sideServers = append(sideServers, &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port),
			Handler:      http.DefaultServeMux, // #nosec G108 -- pprof-only internal port
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		})
	}

	for _, srv := range sideServers {
		g.Go(func() error {
			slog.Info("starting side server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("side server error", "addr", srv.Addr, "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		for _, srv := range sideServers {
			_ = srv.Shutdown(shutdownCtx)
		}
		bgServices.Shutdown()

		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if direction != "version" {
		log.Printf("Running migrations: %s", direction) // #nosec G706 -- operator-supplied CLI argument
		if err := db.RunMigrations(database, direction); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Current schema version: %d (dirty: %v)", v, dirty)
	return nil
}
