package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xplorixa/portal/internal/db/models"
)

// TrendDays is the length of the registration trend window, today included.
const TrendDays = 7

// CounterReader reads the shared registration counter.
type CounterReader interface {
	Get(ctx context.Context) (int64, error)
}

// ProfileStats is the aggregate read surface of the profile store.
type ProfileStats interface {
	CountByStatus(ctx context.Context, status models.Status) (int, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
	DailyRegistrations(ctx context.Context, since time.Time) (map[string]int, error)
}

// TrendPoint is one day of the registration trend.
type TrendPoint struct {
	Date  string `json:"date"`  // YYYY-MM-DD
	Label string `json:"label"` // MM-DD
	Count int    `json:"count"`
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	TotalUsers    int64        `json:"totalUsers"`
	ActiveUsers   int          `json:"activeUsers"`
	NewUsersToday int          `json:"newUsersToday"`
	Trend         []TrendPoint `json:"trend"`
	GeneratedAt   time.Time    `json:"generatedAt"`
}

// DashboardService assembles DashboardStats.
type DashboardService struct {
	counter  CounterReader
	profiles ProfileStats
	now      func() time.Time
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(counter CounterReader, profiles ProfileStats) *DashboardService {
	return &DashboardService{counter: counter, profiles: profiles, now: time.Now}
}

// Stats runs the independent aggregate queries concurrently. Days are UTC.
// TotalUsers is the shared counter, not a row count, so it keeps counting deleted users.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := today.AddDate(0, 0, -(TrendDays - 1))

	stats := &DashboardStats{GeneratedAt: now}
	var daily map[string]int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.counter.Get(gctx)
		stats.TotalUsers = v
		return err
	})
	g.Go(func() error {
		v, err := s.profiles.CountByStatus(gctx, models.StatusActive)
		stats.ActiveUsers = v
		return err
	})
	g.Go(func() error {
		v, err := s.profiles.CountCreatedSince(gctx, today)
		stats.NewUsersToday = v
		return err
	})
	g.Go(func() error {
		v, err := s.profiles.DailyRegistrations(gctx, windowStart)
		daily = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Trend = buildTrend(windowStart, daily)
	return stats, nil
}

// buildTrend returns TrendDays points starting at start, oldest first. Days with no
// registrations are zero.
func buildTrend(start time.Time, daily map[string]int) []TrendPoint {
	trend := make([]TrendPoint, 0, TrendDays)
	for i := 0; i < TrendDays; i++ {
		day := start.AddDate(0, 0, i)
		key := day.Format(time.DateOnly)
		trend = append(trend, TrendPoint{
			Date:  key,
			Label: day.Format("01-02"),
			Count: daily[key],
		})
	}
	return trend
}
