// auth.go provides the two authentication gates of the portal:
// session tokens for the console and admin routes, and x-api-key for the gateway routes.
//
// Middleware execution order (outermost to innermost):
//
//	Security Headers → Rate Limit → Auth (session or API key) → RequireAdmin → Audit → Handler
//
// Session requests carry "Authorization: Bearer <jwt>". The token names an identity; the
// principal (profile + isAdmin) is resolved per request through auth.AdminResolver, which
// caches profiles briefly, so a status change or role change takes effect within the cache TTL
// or immediately when the admin handler invalidates the entry.
//
// Gateway requests carry "x-api-key: sk_...". The key is found by its display prefix,
// bcrypt-compared, scope-checked against the route, and then charged one unit of usage with a
// conditional UPDATE. Keys are never accepted on session routes and JWTs are never accepted on
// gateway routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/telemetry"
)

// Context keys set by the auth middleware.
const (
	PrincipalKey  = "principal"
	UserKey       = "user"
	UserIDKey     = "user_id"
	AuthMethodKey = "auth_method"
	APIKeyKey     = "api_key"
	APIKeyIDKey   = "api_key_id"
	ScopesKey     = "scopes"
)

// PrincipalResolver turns a verified session into a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, uid, email string) (*auth.Principal, error)
}

// GatewayKeyStore is the part of the API key repository the gateway needs.
type GatewayKeyStore interface {
	GetByPrefix(ctx context.Context, keyPrefix string) (*models.APIKey, error)
	ConsumeUsage(ctx context.Context, keyID string, now time.Time) (*models.APIKey, error)
}

// SessionAuth requires a valid session token and stores the resolved principal.
func SessionAuth(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired session",
			})
			return
		}

		principal, err := resolver.Resolve(c.Request.Context(), claims.UserID, claims.Email)
		if err != nil {
			slog.Error("failed to resolve session principal", "user_id", claims.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user profile",
			})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set(UserIDKey, principal.UID)
		c.Set(AuthMethodKey, "jwt")
		if principal.Profile != nil {
			c.Set(UserKey, principal.Profile)
		}

		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the session principal is an admin.
// It must run after SessionAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}
		if !principal.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the principal stored by SessionAuth.
func GetPrincipal(c *gin.Context) (*auth.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}

// APIKeyGateway authenticates a gateway request by its x-api-key header. The scope the
// route needs comes from auth.RequiredScope keyed on the matched route template; routes
// that are not listed there require FULL_ACCESS.
//
// Failure responses:
//   - 401 when the header is missing, malformed, or matches no key
//   - 403 when the key's scope does not cover the route
//   - 403 when the key is revoked, expired or has used its whole quota
func APIKeyGateway(keys GatewayKeyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := routePath(c)

		header := c.GetHeader(auth.APIKeyHeader)
		if header == "" {
			gatewayReject(c, path, "missing_key", http.StatusUnauthorized, "Missing API key")
			return
		}

		provided, err := auth.ExtractAPIKey(header)
		if err != nil {
			gatewayReject(c, path, "invalid_key", http.StatusUnauthorized, "Invalid API key")
			return
		}

		ctx := c.Request.Context()
		key, err := keys.GetByPrefix(ctx, auth.DisplayPrefix(provided))
		if err != nil {
			slog.Error("api key lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify API key",
			})
			return
		}
		if key == nil || !auth.ValidateAPIKey(provided, key.KeyHash) {
			gatewayReject(c, path, "invalid_key", http.StatusUnauthorized, "Invalid API key")
			return
		}

		required, known := auth.RequiredScope(c.Request.Method, path)
		if !known {
			required = models.ScopeFullAccess
		}
		if !key.Scope.Allows(required) {
			gatewayReject(c, path, "insufficient_scope", http.StatusForbidden,
				"API key scope "+string(key.Scope)+" cannot access this endpoint")
			return
		}

		charged, err := keys.ConsumeUsage(ctx, key.ID, time.Now().UTC())
		if err != nil {
			slog.Error("api key usage update failed", "api_key_id", key.ID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to verify API key",
			})
			return
		}
		if charged == nil {
			gatewayReject(c, path, "unusable_key", http.StatusForbidden,
				"API key is revoked, expired or has no remaining usage")
			return
		}

		telemetry.GatewayRequestsTotal.WithLabelValues(path, "allowed").Inc()

		c.Set(APIKeyKey, charged)
		c.Set(APIKeyIDKey, charged.ID)
		c.Set(AuthMethodKey, "api_key")
		c.Set(ScopesKey, []string{string(charged.Scope)})
		c.Header("X-API-Key-Remaining", strconv.Itoa(charged.Remaining()))

		c.Next()
	}
}

func gatewayReject(c *gin.Context, path, outcome string, status int, msg string) {
	telemetry.GatewayRequestsTotal.WithLabelValues(path, outcome).Inc()
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// routePath is the matched route template, so metric labels stay bounded.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return noRouteLabel
}
