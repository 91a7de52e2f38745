// audit.go provides Gin middleware that records admin mutations after the handler has run.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/audit"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/safego"
)

// AuditResourceIDKey lets a handler name the resource it created (for example the ID of a
// freshly issued key) when the route has no ID parameter.
const AuditResourceIDKey = "audit_resource_id"

// AuditMetadataKey lets a handler attach extra fields to the audit entry.
const AuditMetadataKey = "audit_metadata"

type auditRoute struct {
	action       string
	resourceType string
	idParam      string
}

// Audited admin routes keyed by "METHOD /route/template".
var auditRoutes = map[string]auditRoute{
	"PATCH /api/v1/admin/users/:uid/status": {"user.status_toggled", "user", "uid"},
	"DELETE /api/v1/admin/users/:uid":       {"user.deleted", "user", "uid"},
	"POST /api/v1/admin/apikeys":            {"api_key.issued", "api_key", ""},
	"DELETE /api/v1/admin/apikeys/:id":      {"api_key.revoked", "api_key", "id"},
	"POST /api/v1/admin/endpoints":          {"endpoint.created", "endpoint", ""},
	"DELETE /api/v1/admin/endpoints/:id":    {"endpoint.deleted", "endpoint", "id"},
}

// AuditMiddleware ships one audit entry per write request once the handler has finished.
// GET, HEAD and OPTIONS are never recorded. Failed requests (4xx/5xx) are skipped unless
// cfg.LogFailedRequests is set. Shipping happens in the background so a slow destination
// never delays the response.
func AuditMiddleware(shipper audit.Shipper, cfg config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !cfg.Enabled || shipper == nil {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		status := c.Writer.Status()
		if status >= 400 && !cfg.LogFailedRequests {
			return
		}

		entry := buildAuditEntry(c, status)
		safego.Detached("audit", 5*time.Second, func(ctx context.Context) {
			if err := shipper.Ship(ctx, entry); err != nil {
				slog.Error("failed to ship audit entry", "action", entry.Action, "error", err)
			}
		})
	}
}

func buildAuditEntry(c *gin.Context, status int) *audit.Entry {
	entry := &audit.Entry{
		Timestamp:  time.Now().UTC(),
		IPAddress:  c.ClientIP(),
		StatusCode: status,
		Metadata:   map[string]any{"status_code": status},
	}

	if p, ok := GetPrincipal(c); ok {
		entry.ActorUID = p.UID
		entry.ActorEmail = p.Email
	}
	if m := c.GetString(AuthMethodKey); m != "" {
		entry.Metadata["auth_method"] = m
	}

	route, known := auditRoutes[c.Request.Method+" "+c.FullPath()]
	if known {
		entry.Action = route.action
		entry.ResourceType = route.resourceType
		if route.idParam != "" {
			entry.ResourceID = c.Param(route.idParam)
		}
	} else {
		entry.Action = c.Request.Method + " " + c.Request.URL.Path
	}
	if id := c.GetString(AuditResourceIDKey); id != "" {
		entry.ResourceID = id
	}
	if extra, ok := c.Get(AuditMetadataKey); ok {
		if m, ok := extra.(map[string]any); ok {
			for k, v := range m {
				entry.Metadata[k] = v
			}
		}
	}
	return entry
}
