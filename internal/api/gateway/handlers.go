// Package gateway serves the public data endpoints reached with an x-api-key. Routes
// here are mounted behind middleware.GatewayRateLimit and middleware.APIKeyGateway, so
// handlers only run for a key that passed the scope check and was charged one use.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/api/httputil"
	"github.com/xplorixa/portal/internal/db/models"
)

// CounterReader reads the registration counter.
type CounterReader interface {
	Get(ctx context.Context) (int64, error)
}

// ProfilePager pages through profiles.
type ProfilePager interface {
	ListPage(ctx context.Context, limit, offset int) ([]*models.UserProfile, int, error)
}

// Handlers serves /api/users.
type Handlers struct {
	counter         CounterReader
	profiles        ProfilePager
	defaultPageSize int
	maxPageSize     int
	now             func() time.Time
}

// NewHandlers creates the gateway handlers.
func NewHandlers(counter CounterReader, profiles ProfilePager, defaultPageSize, maxPageSize int) *Handlers {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &Handlers{
		counter:         counter,
		profiles:        profiles,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		now:             time.Now,
	}
}

// CountResponse is the body of GET /api/users/count.
type CountResponse struct {
	Count     int64  `json:"count"`
	Timestamp string `json:"timestamp"`
}

// ListResponse is the body of GET /api/users/list.
type ListResponse struct {
	Users []*models.UserProfile `json:"users"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Total int                   `json:"total"`
}

// @Summary      Registered user count
// @Description  Total registrations. Requires a READ_ONLY or FULL_ACCESS key.
// @Tags         Gateway
// @Security     ApiKey
// @Produce      json
// @Success      200  {object}  CountResponse
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid API key"
// @Failure      403  {object}  map[string]interface{}  "Key revoked, expired or out of quota"
// @Failure      429  {object}  map[string]interface{}  "Rate limited"
// @Router       /api/users/count [get]
func (h *Handlers) Count() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.counter.Get(c.Request.Context())
		if err != nil {
			slog.Error("failed to read registration counter", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Counter unavailable"})
			return
		}
		c.JSON(http.StatusOK, CountResponse{
			Count:     n,
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      List users
// @Description  Pages through user profiles, newest first. Requires a FULL_ACCESS key.
// @Tags         Gateway
// @Security     ApiKey
// @Produce      json
// @Param        page   query  int  false  "Page number (default 1)"
// @Param        limit  query  int  false  "Items per page (default 10, max 100)"
// @Success      200  {object}  ListResponse
// @Failure      403  {object}  map[string]interface{}  "Key scope does not allow this endpoint"
// @Router       /api/users/list [get]
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		page := httputil.ParsePage(c, h.defaultPageSize, h.maxPageSize)

		users, total, err := h.profiles.ListPage(c.Request.Context(), page.Limit, page.Offset)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}
		if users == nil {
			users = []*models.UserProfile{}
		}
		c.JSON(http.StatusOK, ListResponse{
			Users: users,
			Page:  page.Page,
			Limit: page.Limit,
			Total: total,
		})
	}
}
