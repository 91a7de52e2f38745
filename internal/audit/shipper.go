// Package audit records admin mutations (status toggles, deletions, key issue and revoke,
// endpoint create and delete). Entries always go to the audit_logs table and can also be
// copied to a JSON-lines file or a webhook for a log aggregator. Audit records have a
// different audience and retention from application logs, so they never go through slog.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/db/models"
)

// Entry is one audited action.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	ActorUID     string         `json:"actor_uid,omitempty"`
	ActorEmail   string         `json:"actor_email,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	StatusCode   int            `json:"status_code,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Shipper delivers entries to one destination.
type Shipper interface {
	Ship(ctx context.Context, entry *Entry) error
	Close() error
}

// Store is the write side of the audit repository.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NewFromConfig builds the shipper set for cfg: the database always, plus a file and a
// webhook when configured.
func NewFromConfig(cfg config.AuditConfig, store Store) (*MultiShipper, error) {
	ms := &MultiShipper{}
	if store != nil {
		ms.Add(&DBShipper{store: store})
	}
	if cfg.FilePath != "" {
		fs, err := NewFileShipper(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		ms.Add(fs)
	}
	if cfg.WebhookURL != "" {
		ms.Add(NewWebhookShipper(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	return ms, nil
}

// MultiShipper fans an entry out to every destination. A failing destination does not
// stop the others.
type MultiShipper struct {
	mu       sync.RWMutex
	shippers []Shipper
}

// Add appends a destination.
func (ms *MultiShipper) Add(s Shipper) {
	ms.mu.Lock()
	ms.shippers = append(ms.shippers, s)
	ms.mu.Unlock()
}

// Len returns the number of destinations.
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends entry to all destinations and joins their errors.
func (ms *MultiShipper) Ship(ctx context.Context, entry *Entry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DBShipper writes entries to the audit_logs table.
type DBShipper struct {
	store Store
}

// NewDBShipper wraps an audit repository.
func NewDBShipper(store Store) *DBShipper {
	return &DBShipper{store: store}
}

// Ship converts entry into an AuditLog row.
func (d *DBShipper) Ship(ctx context.Context, entry *Entry) error {
	row := &models.AuditLog{
		Action:    entry.Action,
		Metadata:  entry.Metadata,
		CreatedAt: entry.Timestamp,
	}
	if entry.ActorUID != "" {
		row.UserID = &entry.ActorUID
	}
	if entry.ResourceType != "" {
		row.ResourceType = &entry.ResourceType
	}
	if entry.ResourceID != "" {
		row.ResourceID = &entry.ResourceID
	}
	if entry.IPAddress != "" {
		row.IPAddress = &entry.IPAddress
	}
	if err := d.store.CreateAuditLog(ctx, row); err != nil {
		return fmt.Errorf("failed to store audit log: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by the caller.
func (d *DBShipper) Close() error { return nil }

// WebhookShipper POSTs each entry as JSON.
type WebhookShipper struct {
	url    string
	client *http.Client
}

// NewWebhookShipper creates a webhook destination. A zero timeout means 10s.
func NewWebhookShipper(url string, timeout time.Duration) *WebhookShipper {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{url: url, client: &http.Client{Timeout: timeout}}
}

// Ship sends entry to the webhook. Any status of 400 or above is an error.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (ws *WebhookShipper) Close() error {
	ws.client.CloseIdleConnections()
	return nil
}

// FileShipper appends entries to a file, one JSON object per line.
type FileShipper struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) path for appending.
func NewFileShipper(path string) (*FileShipper, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{file: f}, nil
}

// Ship writes entry as a single line.
func (fs *FileShipper) Ship(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
