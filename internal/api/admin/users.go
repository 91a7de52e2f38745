// users.go implements the admin user table: listing with search, ban/unban, deletion
// and the CSV export.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/api/httputil"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/export"
	"github.com/xplorixa/portal/internal/middleware"
)

// ProfileStore is the profile repository surface the user handlers need.
type ProfileStore interface {
	List(ctx context.Context) ([]*models.UserProfile, error)
	ToggleStatus(ctx context.Context, uid string) (models.Status, error)
	Delete(ctx context.Context, uid string) (bool, error)
}

// PrincipalCache drops a cached profile after it changes.
type PrincipalCache interface {
	Invalidate(uid string)
}

// UserHandlers handles user management endpoints
type UserHandlers struct {
	profiles ProfileStore
	cache    PrincipalCache
	csvMode  export.Mode
	now      func() time.Time
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(profiles ProfileStore, cache PrincipalCache, csvMode export.Mode) *UserHandlers {
	if csvMode == "" {
		csvMode = export.ModeLegacy
	}
	return &UserHandlers{profiles: profiles, cache: cache, csvMode: csvMode, now: time.Now}
}

// @Summary      List users
// @Description  Lists every profile, newest first. search filters by case-insensitive substring of name or email.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        search  query  string  false  "Name or email fragment"
// @Success      200  {object}  map[string]interface{}  "users: []models.UserProfile, total: int"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Admin access required"
// @Router       /api/v1/admin/users [get]
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.profiles.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}
		users = export.Filter(users, c.Query("search"))
		if users == nil {
			users = []*models.UserProfile{}
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"total": len(users),
		})
	}
}

// @Summary      Toggle user status
// @Description  Bans an active user, or reactivates a banned or inactive one.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        uid  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "uid, status"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{uid}/status [patch]
func (h *UserHandlers) ToggleStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := httputil.UUIDParam(c, "uid")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		status, err := h.profiles.ToggleStatus(c.Request.Context(), uid)
		if err != nil {
			slog.Error("failed to toggle user status", "uid", uid, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		if status == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.cache.Invalidate(uid)

		c.Set(middleware.AuditMetadataKey, map[string]any{"new_status": string(status)})
		c.JSON(http.StatusOK, gin.H{"uid": uid, "status": status})
	}
}

// @Summary      Delete user
// @Description  Deletes the profile record. The credential and the stored picture are left in place and the registration counter is not decremented.
// @Tags         Users
// @Security     Bearer
// @Param        uid  path  string  true  "User ID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{uid} [delete]
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := httputil.UUIDParam(c, "uid")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		deleted, err := h.profiles.Delete(c.Request.Context(), uid)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.cache.Invalidate(uid)

		c.Status(http.StatusNoContent)
	}
}

// @Summary      Export users
// @Description  Downloads the (optionally filtered) user table as CSV.
// @Tags         Users
// @Security     Bearer
// @Produce      text/csv
// @Param        search  query  string  false  "Name or email fragment"
// @Success      200  {file}  file
// @Router       /api/v1/admin/users/export [get]
func (h *UserHandlers) ExportUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.profiles.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list users for export", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export users"})
			return
		}
		users = export.Filter(users, c.Query("search"))

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="`+export.Filename(h.now())+`"`)
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, h.csvMode, users); err != nil {
			// Headers are already out; all that is left is to log it.
			slog.Error("failed to write user export", "error", err)
		}
	}
}
