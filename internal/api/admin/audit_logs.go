// audit_logs.go exposes the audit trail written by middleware.AuditMiddleware.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/api/httputil"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/db/repositories"
)

// AuditLogReader reads audit entries.
type AuditLogReader interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// AuditLogHandlers serves the audit trail
type AuditLogHandlers struct {
	logs AuditLogReader
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(logs AuditLogReader) *AuditLogHandlers {
	return &AuditLogHandlers{logs: logs}
}

// @Summary      List audit logs
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        limit          query  int     false  "Items per page, max 100 (default 50)"
// @Param        user_id        query  string  false  "Actor UID"
// @Param        action         query  string  false  "Action, e.g. user.deleted"
// @Param        resource_type  query  string  false  "user, api_key or endpoint"
// @Param        start_date     query  string  false  "RFC3339 lower bound"
// @Param        end_date       query  string  false  "RFC3339 upper bound"
// @Success      200  {object}  map[string]interface{}  "logs, page, limit, total"
// @Failure      400  {object}  map[string]interface{}  "Invalid date"
// @Router       /api/v1/admin/audit-logs [get]
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filters repositories.AuditFilters
		if v := c.Query("user_id"); v != "" {
			filters.UserID = &v
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		for param, dst := range map[string]**time.Time{
			"start_date": &filters.StartDate,
			"end_date":   &filters.EndDate,
		} {
			raw := c.Query(param)
			if raw == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + ": expected RFC3339"})
				return
			}
			*dst = &t
		}

		page := httputil.ParsePage(c, 50, 100)
		logs, total, err := h.logs.ListAuditLogs(c.Request.Context(), filters, page.Limit, page.Offset)
		if err != nil {
			slog.Error("failed to list audit logs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}
		if logs == nil {
			logs = []*models.AuditLog{}
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":  logs,
			"page":  page.Page,
			"limit": page.Limit,
			"total": total,
		})
	}
}
