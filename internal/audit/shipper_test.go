package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplorixa/portal/internal/audit"
	"github.com/xplorixa/portal/internal/config"
	"github.com/xplorixa/portal/internal/db/models"
)

type memStore struct {
	mu   sync.Mutex
	rows []*models.AuditLog
	err  error
}

func (m *memStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, log)
	return nil
}

func sampleEntry() *audit.Entry {
	return &audit.Entry{
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Action:       "user.banned",
		ActorUID:     "admin-1",
		ResourceType: "user",
		ResourceID:   "u-42",
		IPAddress:    "10.0.0.1",
		StatusCode:   200,
		Metadata:     map[string]any{"status": "banned"},
	}
}

func TestDBShipper_MapsFields(t *testing.T) {
	store := &memStore{}
	require.NoError(t, audit.NewDBShipper(store).Ship(context.Background(), sampleEntry()))

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "user.banned", row.Action)
	require.NotNil(t, row.UserID)
	assert.Equal(t, "admin-1", *row.UserID)
	require.NotNil(t, row.ResourceID)
	assert.Equal(t, "u-42", *row.ResourceID)
	assert.Equal(t, "banned", row.Metadata["status"])
}

func TestDBShipper_OmitsEmptyPointers(t *testing.T) {
	store := &memStore{}
	require.NoError(t, audit.NewDBShipper(store).Ship(context.Background(), &audit.Entry{Action: "x"}))
	row := store.rows[0]
	assert.Nil(t, row.UserID)
	assert.Nil(t, row.ResourceType)
	assert.Nil(t, row.ResourceID)
	assert.Nil(t, row.IPAddress)
}

func TestFileShipper_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(path)
	require.NoError(t, err)

	require.NoError(t, fs.Ship(context.Background(), sampleEntry()))
	require.NoError(t, fs.Ship(context.Background(), &audit.Entry{Action: "api_key.revoked"}))
	require.NoError(t, fs.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var actions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e audit.Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"user.banned", "api_key.revoked"}, actions)
}

func TestFileShipper_BadPath(t *testing.T) {
	_, err := audit.NewFileShipper(filepath.Join(t.TempDir(), "missing", "dir", "audit.log"))
	assert.Error(t, err)
}

func TestWebhookShipper(t *testing.T) {
	var got audit.Entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ws := audit.NewWebhookShipper(srv.URL, time.Second)
	require.NoError(t, ws.Ship(context.Background(), sampleEntry()))
	assert.Equal(t, "u-42", got.ResourceID)
	assert.NoError(t, ws.Close())
}

func TestWebhookShipper_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := audit.NewWebhookShipper(srv.URL, time.Second).Ship(context.Background(), sampleEntry())
	assert.ErrorContains(t, err, "502")
}

func TestMultiShipper_ContinuesPastFailures(t *testing.T) {
	failing := &memStore{err: errors.New("db down")}
	ok := &memStore{}

	ms := &audit.MultiShipper{}
	ms.Add(audit.NewDBShipper(failing))
	ms.Add(audit.NewDBShipper(ok))

	err := ms.Ship(context.Background(), sampleEntry())
	assert.ErrorContains(t, err, "db down")
	assert.Len(t, ok.rows, 1)
	assert.NoError(t, ms.Close())
}

func TestNewFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	ms, err := audit.NewFromConfig(config.AuditConfig{
		Enabled:    true,
		FilePath:   filepath.Join(t.TempDir(), "audit.log"),
		WebhookURL: srv.URL,
	}, &memStore{})
	require.NoError(t, err)
	defer ms.Close()
	assert.Equal(t, 3, ms.Len())

	dbOnly, err := audit.NewFromConfig(config.AuditConfig{Enabled: true}, &memStore{})
	require.NoError(t, err)
	assert.Equal(t, 1, dbOnly.Len())
}
