// Package middleware provides the Gin middleware of the portal API: request IDs, metrics,
// security headers, rate limits, the session and API-key gates, and the admin audit trail.
// internal/api/router.go registers all of it before any route handler.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/telemetry"
)

// noRouteLabel replaces the path label of requests that matched no route (404/405).
const noRouteLabel = "<no-route>"

// MetricsMiddleware records http_requests_total{method,path,status} and
// http_request_duration_seconds{method,path}. The path label is the route template from
// c.FullPath() (for example /api/v1/admin/users/:uid), never the raw URL.
//
// Register it after gin.Recovery() and RequestIDMiddleware so the final status is seen:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
//	router.Use(MetricsMiddleware())
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRouteLabel
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
