// Package api wires together all HTTP routes of the portal.
//
// Route groups:
//   - /api/v1/auth: registration and login are public (behind the in-process rate limiter);
//     /me requires a session.
//   - /api/v1/admin: session + admin role. Mutations are audited.
//   - /api/users: the key-gated gateway. Redis rate limit first, then x-api-key
//     verification, scope check and usage charge.
//   - /api/docs, /health, /ready, /version and /files are public.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/xplorixa/portal/internal/api/admin"
	"github.com/xplorixa/portal/internal/api/authn"
	"github.com/xplorixa/portal/internal/api/docs"
	"github.com/xplorixa/portal/internal/api/gateway"
	"github.com/xplorixa/portal/internal/audit"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/counter"
	"github.com/xplorixa/portal/internal/db/repositories"
	"github.com/xplorixa/portal/internal/export"
	"github.com/xplorixa/portal/internal/identity"
	"github.com/xplorixa/portal/internal/jobs"
	"github.com/xplorixa/portal/internal/middleware"
	"github.com/xplorixa/portal/internal/registration"
	"github.com/xplorixa/portal/internal/services"
	"github.com/xplorixa/portal/internal/storage"
	"github.com/xplorixa/portal/internal/telemetry"
)

// Version is reported by /version. Set at build time with -ldflags.
var Version = "dev"

// Infra is the shared infrastructure the router builds on. The caller owns its lifecycle.
type Infra struct {
	DB      *sql.DB
	Redis   redis.UniversalClient
	Counter *counter.Store
	Hub     *counter.Hub
	// Storage is built from cfg.Storage when nil.
	Storage storage.Storage
}

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	expiryNotifier *jobs.APIKeyExpiryNotifier
	rateLimiters   []*middleware.RateLimiter
	auditShipper   audit.Shipper
	resolver       *auth.AdminResolver
}

// AdminResolver returns the resolver behind the auth gate so the caller can push
// allow-list changes into it.
func (bg *BackgroundServices) AdminResolver() *auth.AdminResolver {
	return bg.resolver
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.expiryNotifier != nil {
		bg.expiryNotifier.Stop(10 * time.Second)
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, infra Infra) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	storageBackend := infra.Storage
	if storageBackend == nil {
		var err error
		storageBackend, err = storage.NewStorage(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize storage backend: %w", err)
		}
		slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)
	}

	// Repositories
	db := infra.DB
	profileRepo := repositories.NewProfileRepository(db)
	identityRepo := repositories.NewIdentityRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	endpointRepo := repositories.NewEndpointRepository(sqlx.NewDb(db, "postgres"))

	// Services
	identities := identity.NewLocalProvider(identityRepo)
	resolver := auth.NewAdminResolver(profileRepo, cfg.Auth.AdminEmails, cfg.Auth.ProfileCacheSize, cfg.Auth.ProfileCacheTTL)
	registrar := registration.NewService(identities, storageBackend, profileRepo, infra.Counter, registration.Options{
		MaxAvatarBytes:      cfg.Registration.MaxAvatarBytes,
		AllowedContentTypes: cfg.Registration.AllowedContentTypes,
		Compensate:          cfg.Registration.Compensate,
		Observer:            telemetry.ObserveRegistration,
	})
	issuer := services.NewAPIKeyIssuer(apiKeyRepo, cfg.Auth.APIKeyPrefix, cfg.APIKeys.UsageLimit, cfg.APIKeys.TTL)
	dashboard := services.NewDashboardService(infra.Counter, profileRepo)

	auditShipper, err := audit.NewFromConfig(cfg.Audit, auditRepo)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize audit shipper: %w", err)
	}

	expiryNotifier := jobs.NewAPIKeyExpiryNotifier(apiKeyRepo, &cfg.Notifications)
	if err := expiryNotifier.Start(context.Background()); err != nil {
		return nil, nil, err
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))

	apiHeaders := middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig())

	router.GET("/health", apiHeaders, healthCheckHandler(db, infra.Redis))
	router.GET("/ready", apiHeaders, readinessHandler(db, infra.Redis, storageBackend))
	router.GET("/version", apiHeaders, versionHandler())

	// Stored profile pictures. Only the avatar prefix is reachable.
	router.GET("/files/*key",
		middleware.SecurityHeadersMiddleware(middleware.AssetSecurityHeadersConfig()),
		serveFileHandler(storageBackend))

	router.GET("/api/docs", apiHeaders, docs.NewBuilder(cfg.Server.BaseURL, docs.Limits{
		Count: cfg.Gateway.CountPerMinute,
		List:  cfg.Gateway.ListPerMinute,
	}, endpointRepo).Handler())

	// In-process limiter for credential endpoints
	authRateLimiter := middleware.NewRateLimiter(authRateLimitConfig(cfg))

	authHandlers := authn.NewHandlers(registrar, identities, resolver, cfg.Auth.SessionTTL, cfg.Registration.MaxAvatarBytes)
	authGroup := router.Group("/api/v1/auth", apiHeaders)
	{
		limited := authGroup.Group("")
		if cfg.Security.RateLimiting.Enabled {
			limited.Use(middleware.RateLimitMiddleware(authRateLimiter))
		}
		limited.POST("/register", authHandlers.Register())
		limited.POST("/login", authHandlers.Login())

		authGroup.GET("/me", middleware.SessionAuth(resolver), authHandlers.Me())
	}

	userHandlers := admin.NewUserHandlers(profileRepo, resolver, export.Mode(cfg.Export.CSVMode))
	statsHandler := admin.NewStatsHandler(dashboard, infra.Hub)
	apiKeyHandlers := admin.NewAPIKeyHandlers(issuer, apiKeyRepo)
	endpointHandlers := admin.NewEndpointHandlers(endpointRepo)
	auditLogHandlers := admin.NewAuditLogHandlers(auditRepo)

	adminGroup := router.Group("/api/v1/admin", apiHeaders,
		middleware.SessionAuth(resolver),
		middleware.RequireAdmin(),
		middleware.AuditMiddleware(auditShipper, cfg.Audit),
	)
	{
		adminGroup.GET("/users", userHandlers.ListUsersHandler())
		adminGroup.GET("/users/export", userHandlers.ExportUsersHandler())
		adminGroup.PATCH("/users/:uid/status", userHandlers.ToggleStatusHandler())
		adminGroup.DELETE("/users/:uid", userHandlers.DeleteUserHandler())

		adminGroup.GET("/stats", statsHandler.GetDashboardStats)
		adminGroup.GET("/stats/stream", statsHandler.StreamCounter)

		adminGroup.GET("/apikeys", apiKeyHandlers.ListAPIKeysHandler())
		adminGroup.POST("/apikeys", apiKeyHandlers.CreateAPIKeyHandler())
		adminGroup.DELETE("/apikeys/:id", apiKeyHandlers.RevokeAPIKeyHandler())

		adminGroup.GET("/endpoints", endpointHandlers.ListEndpointsHandler())
		adminGroup.POST("/endpoints", endpointHandlers.CreateEndpointHandler())
		adminGroup.DELETE("/endpoints/:id", endpointHandlers.DeleteEndpointHandler())

		adminGroup.GET("/audit-logs", auditLogHandlers.ListAuditLogsHandler())
	}

	// Gateway. The Redis limit runs before key verification so a flood of bad keys
	// never reaches bcrypt.
	gatewayLimiter := redis_rate.NewLimiter(infra.Redis)
	gatewayHandlers := gateway.NewHandlers(infra.Counter, profileRepo, cfg.Gateway.DefaultPageSize, cfg.Gateway.MaxPageSize)
	gatewayGroup := router.Group("/api/users", apiHeaders)
	{
		gatewayGroup.GET("/count",
			middleware.GatewayRateLimit(gatewayLimiter, cfg.Gateway.CountPerMinute),
			middleware.APIKeyGateway(apiKeyRepo),
			gatewayHandlers.Count())
		gatewayGroup.GET("/list",
			middleware.GatewayRateLimit(gatewayLimiter, cfg.Gateway.ListPerMinute),
			middleware.APIKeyGateway(apiKeyRepo),
			gatewayHandlers.List())
	}

	bg := &BackgroundServices{
		expiryNotifier: expiryNotifier,
		rateLimiters:   []*middleware.RateLimiter{authRateLimiter},
		auditShipper:   auditShipper,
		resolver:       resolver,
	}

	return router, bg, nil
}

func authRateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.AuthRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		rl.BurstSize = cfg.Security.RateLimiting.Burst
	}
	return rl
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database and Redis connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error"
// @Router       /health [get]
func healthCheckHandler(db *sql.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "redis connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database, Redis and the avatar store.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler also probes the storage backend, so the readiness gate fails when
// avatar uploads would error.
func readinessHandler(db *sql.DB, rdb redis.UniversalClient, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		notReady := func(component, msg string) {
			checks[component] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  msg,
			})
		}

		if err := db.PingContext(ctx); err != nil {
			notReady("database", "database not ready")
			return
		}
		checks["database"] = "healthy"

		if err := rdb.Ping(ctx).Err(); err != nil {
			notReady("redis", "redis not ready")
			return
		}
		checks["redis"] = "healthy"

		// A known-absent key exercises credentials and connectivity without writing.
		if _, err := storageBackend.Exists(ctx, ".readiness-probe"); err != nil {
			notReady("storage", "storage backend not ready")
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// serveFileHandler streams a stored profile picture. Keys outside the avatar prefix
// are not served.
func serveFileHandler(store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if !strings.HasPrefix(key, storage.AvatarPrefix) || strings.Contains(key, "..") {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}

		body, obj, err := store.Open(c.Request.Context(), key)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		if err != nil {
			slog.Error("failed to open stored file", "key", key, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read file"})
			return
		}
		defer body.Close()

		c.Header("Cache-Control", "private, max-age=300")
		if obj.Checksum != "" {
			c.Header("ETag", `"`+obj.Checksum+`"`)
		}
		c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, body, nil)
	}
}

// LoggerMiddleware logs one structured record per request. The output format (JSON or
// text) is decided by the handler installed in telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	level := telemetry.ParseLevel(cfg.Logging.Level)
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		// Streams stay open for minutes; their completion is not interesting at info level.
		if c.FullPath() == "/api/v1/admin/stats/stream" && level > slog.LevelDebug {
			return
		}
		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest writes the access log record. The x-api-key header is never logged.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if method, ok := c.Get(middleware.AuthMethodKey); ok {
		attrs = append(attrs, slog.Any("auth_method", method))
	}
	slog.LogAttrs(c.Request.Context(), slog.LevelInfo, "http request", attrs...)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PATCH, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, "+auth.APIKeyHeader)
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-API-Key-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
