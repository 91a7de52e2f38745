// Package jobs holds the portal's scheduled background work.
//
// api_key_expiry_notifier.go warns the issuing administrator by email when a gateway key
// is about to expire. The sent marker is stored on the key row
// (expiry_notification_sent_at), so each key is mailed at most once across restarts. The
// job does nothing when notifications are disabled or no SMTP host is configured.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/safego"
	"github.com/xplorixa/portal/internal/telemetry"
)

// DefaultExpirySchedule is used when no cron expression is configured.
const DefaultExpirySchedule = "@every 24h"

// ExpiringKeyStore is the API key repository surface the notifier needs.
type ExpiringKeyStore interface {
	FindExpiringKeys(ctx context.Context, warningDays int) ([]*models.APIKey, error)
	MarkExpiryNotificationSent(ctx context.Context, keyID string) error
}

// Mailer delivers one plain-text message.
type Mailer interface {
	Send(to, subject, body string) error
}

// APIKeyExpiryNotifier periodically emails creators of keys that are about to expire.
type APIKeyExpiryNotifier struct {
	keys   ExpiringKeyStore
	mailer Mailer
	cfg    *config.NotificationsConfig
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running sync.Mutex
}

// NewAPIKeyExpiryNotifier creates a notifier that mails through cfg.SMTP.
func NewAPIKeyExpiryNotifier(keys ExpiringKeyStore, cfg *config.NotificationsConfig) *APIKeyExpiryNotifier {
	return NewAPIKeyExpiryNotifierWithMailer(keys, NewSMTPMailer(cfg.SMTP), cfg)
}

// NewAPIKeyExpiryNotifierWithMailer creates a notifier with a custom Mailer.
func NewAPIKeyExpiryNotifierWithMailer(keys ExpiringKeyStore, mailer Mailer, cfg *config.NotificationsConfig) *APIKeyExpiryNotifier {
	return &APIKeyExpiryNotifier{keys: keys, mailer: mailer, cfg: cfg, now: time.Now}
}

// Enabled reports whether the notifier has anything to do.
func (n *APIKeyExpiryNotifier) Enabled() bool {
	return n.cfg.Enabled && n.cfg.SMTP.Host != ""
}

// Start schedules the check on cfg.APIKeyExpirySchedule and runs it once right away.
// It returns an error only for an invalid schedule.
func (n *APIKeyExpiryNotifier) Start(ctx context.Context) error {
	if !n.cfg.Enabled {
		slog.Info("api key expiry notifier disabled", "reason", "notifications.enabled=false")
		return nil
	}
	if n.cfg.SMTP.Host == "" {
		slog.Info("api key expiry notifier disabled", "reason", "notifications.smtp.host not set")
		return nil
	}

	schedule := n.cfg.APIKeyExpirySchedule
	if schedule == "" {
		schedule = DefaultExpirySchedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { n.check(ctx) }); err != nil {
		return fmt.Errorf("invalid api key expiry schedule %q: %w", schedule, err)
	}

	n.mu.Lock()
	n.cron = c
	n.mu.Unlock()

	c.Start()
	slog.Info("api key expiry notifier started",
		"schedule", schedule, "warning_days", n.warningDays())

	safego.Go("api-key-expiry-initial-check", func() { n.check(ctx) })
	return nil
}

// Stop halts the schedule and waits up to timeout for a running check to finish.
func (n *APIKeyExpiryNotifier) Stop(timeout time.Duration) {
	n.mu.Lock()
	c := n.cron
	n.cron = nil
	n.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		slog.Info("api key expiry notifier stopped")
	case <-time.After(timeout):
		slog.Warn("api key expiry notifier did not stop in time", "timeout", timeout)
	}
}

func (n *APIKeyExpiryNotifier) warningDays() int {
	if n.cfg.APIKeyExpiryWarningDays <= 0 {
		return 7
	}
	return n.cfg.APIKeyExpiryWarningDays
}

func (n *APIKeyExpiryNotifier) check(ctx context.Context) {
	if !n.running.TryLock() {
		return
	}
	defer n.running.Unlock()

	if _, err := n.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("api key expiry check failed", "error", err)
	}
}

// RunOnce mails every key in the warning window and returns how many were sent.
// A failed send is logged and retried on the next run.
func (n *APIKeyExpiryNotifier) RunOnce(ctx context.Context) (int, error) {
	keys, err := n.keys.FindExpiringKeys(ctx, n.warningDays())
	if err != nil {
		return 0, fmt.Errorf("query expiring keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	slog.Info("api keys approaching expiry", "count", len(keys))

	sent := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if key.CreatedBy == "" {
			continue
		}

		subject, body := n.expiryMessage(key)
		if err := n.mailer.Send(key.CreatedBy, subject, body); err != nil {
			slog.Warn("failed to send api key expiry email",
				"api_key_id", key.ID, "to", key.CreatedBy, "error", err)
			continue
		}
		telemetry.APIKeyExpiryNotificationsSentTotal.Inc()
		sent++

		if err := n.keys.MarkExpiryNotificationSent(ctx, key.ID); err != nil {
			slog.Error("failed to mark api key expiry notification sent", "api_key_id", key.ID, "error", err)
		}
	}
	return sent, nil
}

func (n *APIKeyExpiryNotifier) expiryMessage(key *models.APIKey) (string, string) {
	daysLeft := max(int(key.ExpiresAt.Sub(n.now()).Hours()/24)+1, 0)

	subject := fmt.Sprintf("Action required: API key %s... expires in %d day(s)", key.KeyPrefix, daysLeft)
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("The %s API key %s... you issued will expire on %s (%d day(s) from now).",
			key.Scope, key.KeyPrefix, key.ExpiresAt.UTC().Format(time.RFC1123), daysLeft),
		fmt.Sprintf("It has served %d of %d requests.", key.CurrentUsage, key.UsageLimit),
		"",
		"Issue a replacement from Admin > API Keys and hand it to the integration before",
		"the expiry date. If the key is no longer needed, no action is required.",
		"",
		"Xplorixa",
	}, "\r\n")
	return subject, body
}
