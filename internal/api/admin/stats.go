// stats.go serves the dashboard overview and the live registration counter stream.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/services"
	"github.com/xplorixa/portal/internal/telemetry"
)

// DefaultHeartbeat is how often an idle counter stream sends a keep-alive comment.
const DefaultHeartbeat = 25 * time.Second

// StatsSource produces the dashboard overview.
type StatsSource interface {
	Stats(ctx context.Context) (*services.DashboardStats, error)
}

// CounterFeed hands out counter subscriptions.
type CounterFeed interface {
	Subscribe() (<-chan int64, func())
}

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	stats     StatsSource
	feed      CounterFeed
	heartbeat time.Duration
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(stats StatsSource, feed CounterFeed) *StatsHandler {
	return &StatsHandler{stats: stats, feed: feed, heartbeat: DefaultHeartbeat}
}

// @Summary      Dashboard statistics
// @Description  Total registrations (shared counter), active users, users created today (UTC) and the 7-day registration trend.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  services.DashboardStats
// @Failure      500  {object}  map[string]interface{}  "Failed to load statistics"
// @Router       /api/v1/admin/stats [get]
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		slog.Error("failed to build dashboard stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary      Live registration counter
// @Description  Server-sent events. Each "count" event carries {"count": n}; the current value is sent first when known.
// @Tags         Stats
// @Security     Bearer
// @Produce      text/event-stream
// @Success      200
// @Router       /api/v1/admin/stats/stream [get]
func (h *StatsHandler) StreamCounter(c *gin.Context) {
	updates, cancel := h.feed.Subscribe()
	defer cancel()

	telemetry.CounterStreamListeners.Inc()
	defer telemetry.CounterStreamListeners.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// The stream outlives server.write_timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("count", gin.H{"count": v})
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
