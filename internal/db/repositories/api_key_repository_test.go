package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/xplorixa/portal/internal/db/models"
)

var apiKeyCols = []string{
	"id", "key_hash", "key_prefix", "created_by", "scope", "status", "usage_limit", "current_usage",
	"created_at", "expires_at", "last_used_at", "expiry_notification_sent_at",
}

func sampleAPIKeyRow(usage int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(apiKeyCols).
		AddRow("key-1", "hashedkey", "sk_abc123def456", "admin@example.com", "READ_ONLY", "active",
			10000, usage, now, now.Add(30*24*time.Hour), nil, nil)
}

func newAPIKeyRepo(t *testing.T) (*APIKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAPIKeyRepository(db), mock
}

func TestAPIKeyCreate_KeepsIssuanceTime(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	issued := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(sqlmock.AnyArg(), "hash", "sk_prefix", "admin@example.com", models.ScopeReadOnly,
			models.KeyStatusActive, 10000, 0, issued, issued.Add(720*time.Hour)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	key := &models.APIKey{
		KeyHash:    "hash",
		KeyPrefix:  "sk_prefix",
		CreatedBy:  "admin@example.com",
		Scope:      models.ScopeReadOnly,
		Status:     models.KeyStatusActive,
		UsageLimit: 10000,
		CreatedAt:  issued,
		ExpiresAt:  issued.Add(720 * time.Hour),
	}
	if err := repo.Create(context.Background(), key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ID == "" {
		t.Error("ID was not assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAPIKeyCreate_PrefixCollision(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("INSERT INTO api_keys").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.APIKey{})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestAPIKeyGetByPrefix(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT .* FROM api_keys WHERE key_prefix").
		WithArgs("sk_abc123def456").
		WillReturnRows(sampleAPIKeyRow(0))

	key, err := repo.GetByPrefix(context.Background(), "sk_abc123def456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil || key.Scope != models.ScopeReadOnly || key.UsageLimit != 10000 {
		t.Fatalf("key = %+v", key)
	}
}

func TestAPIKeyGetByPrefix_NotFound(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT .* FROM api_keys WHERE key_prefix").
		WillReturnRows(sqlmock.NewRows(apiKeyCols))

	key, err := repo.GetByPrefix(context.Background(), "sk_nothing")
	if err != nil || key != nil {
		t.Fatalf("GetByPrefix = %+v, %v; want nil, nil", key, err)
	}
}

func TestAPIKeyList(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT .* FROM api_keys ORDER BY created_at DESC").
		WillReturnRows(sampleAPIKeyRow(5))

	keys, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 || keys[0].CurrentUsage != 5 {
		t.Errorf("keys = %+v", keys)
	}
}

func TestAPIKeyConsumeUsage(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	now := time.Now()
	mock.ExpectQuery(`UPDATE api_keys\s+SET current_usage = current_usage \+ 1`).
		WithArgs("key-1", now).
		WillReturnRows(sampleAPIKeyRow(1))

	key, err := repo.ConsumeUsage(context.Background(), "key-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == nil || key.CurrentUsage != 1 {
		t.Fatalf("key = %+v", key)
	}
}

func TestAPIKeyConsumeUsage_Exhausted(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("UPDATE api_keys").
		WillReturnRows(sqlmock.NewRows(apiKeyCols))

	key, err := repo.ConsumeUsage(context.Background(), "key-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key when quota is spent, got %+v", key)
	}
}

func TestAPIKeyRevoke(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectExec("UPDATE api_keys SET status = 'revoked'").
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Revoke(context.Background(), "key-1")
	if err != nil || !ok {
		t.Fatalf("Revoke = %v, %v", ok, err)
	}
}

func TestAPIKeyFindExpiringKeys(t *testing.T) {
	repo, mock := newAPIKeyRepo(t)
	mock.ExpectQuery("SELECT .* FROM api_keys.*expiry_notification_sent_at IS NULL").
		WillReturnRows(sampleAPIKeyRow(0))
	mock.ExpectExec("UPDATE api_keys SET expiry_notification_sent_at").
		WithArgs(sqlmock.AnyArg(), "key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	keys, err := repo.FindExpiringKeys(context.Background(), 7)
	if err != nil || len(keys) != 1 {
		t.Fatalf("FindExpiringKeys = %v, %v", keys, err)
	}
	if err := repo.MarkExpiryNotificationSent(context.Background(), keys[0].ID); err != nil {
		t.Fatalf("MarkExpiryNotificationSent: %v", err)
	}
}
