// Package admin implements the administrative HTTP handlers of the portal.
// Every route here sits behind middleware.SessionAuth and middleware.RequireAdmin, and
// mutations are recorded by middleware.AuditMiddleware.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/api/httputil"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/middleware"
	"github.com/xplorixa/portal/internal/telemetry"
)

// KeyIssuer mints gateway keys.
type KeyIssuer interface {
	Issue(ctx context.Context, scope models.Scope, creatorEmail string) (*models.APIKey, string, error)
}

// KeyStore is the API key repository surface the handlers need.
type KeyStore interface {
	List(ctx context.Context) ([]*models.APIKey, error)
	Revoke(ctx context.Context, keyID string) (bool, error)
}

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	issuer KeyIssuer
	keys   KeyStore
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(issuer KeyIssuer, keys KeyStore) *APIKeyHandlers {
	return &APIKeyHandlers{issuer: issuer, keys: keys}
}

// APIKeyView is an API key as shown to administrators. The hash never leaves the server.
type APIKeyView struct {
	ID           string           `json:"id"`
	KeyPrefix    string           `json:"keyPrefix"`
	CreatedBy    string           `json:"createdBy"`
	Scope        models.Scope     `json:"scope"`
	Status       models.KeyStatus `json:"status"`
	UsageLimit   int              `json:"usageLimit"`
	CurrentUsage int              `json:"currentUsage"`
	CreatedAt    time.Time        `json:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	LastUsedAt   *time.Time       `json:"lastUsedAt,omitempty"`
	Expired      bool             `json:"expired"`
}

func newAPIKeyView(k *models.APIKey, now time.Time) APIKeyView {
	return APIKeyView{
		ID:           k.ID,
		KeyPrefix:    k.KeyPrefix,
		CreatedBy:    k.CreatedBy,
		Scope:        k.Scope,
		Status:       k.Status,
		UsageLimit:   k.UsageLimit,
		CurrentUsage: k.CurrentUsage,
		CreatedAt:    k.CreatedAt,
		ExpiresAt:    k.ExpiresAt,
		LastUsedAt:   k.LastUsedAt,
		Expired:      k.IsExpired(now),
	}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Scope string `json:"scope" binding:"required"`
}

// CreateAPIKeyResponse carries the plaintext key. It is returned once and never stored.
type CreateAPIKeyResponse struct {
	Key    string     `json:"key"`
	APIKey APIKeyView `json:"apiKey"`
}

// @Summary      List API keys
// @Description  Lists every gateway key, newest first.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "apiKeys: []APIKeyView"
// @Failure      403  {object}  map[string]interface{}  "Admin access required"
// @Router       /api/v1/admin/apikeys [get]
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.keys.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list api keys", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}

		now := time.Now()
		views := make([]APIKeyView, 0, len(keys))
		for _, k := range keys {
			views = append(views, newAPIKeyView(k, now))
		}
		c.JSON(http.StatusOK, gin.H{"apiKeys": views})
	}
}

// @Summary      Issue API key
// @Description  Issues a gateway key with the configured usage limit and lifetime. The plaintext key is in the response only.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "READ_ONLY or FULL_ACCESS"
// @Success      201  {object}  CreateAPIKeyResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid scope"
// @Router       /api/v1/admin/apikeys [post]
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scope is required"})
			return
		}
		scope, err := auth.ParseScope(req.Scope)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		key, plaintext, err := h.issuer.Issue(c.Request.Context(), scope, principal.Email)
		if err != nil {
			slog.Error("failed to issue api key", "scope", scope, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue API key"})
			return
		}
		telemetry.APIKeysIssuedTotal.WithLabelValues(string(scope)).Inc()

		c.Set(middleware.AuditResourceIDKey, key.ID)
		c.Set(middleware.AuditMetadataKey, map[string]any{"scope": string(scope), "key_prefix": key.KeyPrefix})
		c.JSON(http.StatusCreated, CreateAPIKeyResponse{
			Key:    plaintext,
			APIKey: newAPIKeyView(key, time.Now()),
		})
	}
}

// @Summary      Revoke API key
// @Description  Marks a key revoked. Revoked keys fail the gateway with 403.
// @Tags         API Keys
// @Security     Bearer
// @Param        id  path  string  true  "API key ID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Router       /api/v1/admin/apikeys/{id} [delete]
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httputil.UUIDParam(c, "id")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		revoked, err := h.keys.Revoke(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to revoke api key", "api_key_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke API key"})
			return
		}
		if !revoked {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
