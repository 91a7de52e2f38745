// api_key_repository.go implements APIKeyRepository, providing database queries for gateway
// key lookup by prefix, issuance, atomic usage consumption, revocation and expiry warnings.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/xplorixa/portal/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, key_hash, key_prefix, created_by, scope, status, usage_limit, current_usage,
	created_at, expires_at, last_used_at, expiry_notification_sent_at`

func scanAPIKey(row rowScanner, k *models.APIKey) error {
	return row.Scan(
		&k.ID,
		&k.KeyHash,
		&k.KeyPrefix,
		&k.CreatedBy,
		&k.Scope,
		&k.Status,
		&k.UsageLimit,
		&k.CurrentUsage,
		&k.CreatedAt,
		&k.ExpiresAt,
		&k.LastUsedAt,
		&k.ExpiryNotificationSentAt,
	)
}

// Create inserts a new API key. ErrDuplicate is returned when the key prefix collides
// with an existing key so the caller can generate a fresh one.
func (r *APIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	apiKey.ID = uuid.New().String()
	if apiKey.CreatedAt.IsZero() {
		apiKey.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO api_keys (id, key_hash, key_prefix, created_by, scope, status, usage_limit, current_usage, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.CreatedBy,
		apiKey.Scope,
		apiKey.Status,
		apiKey.UsageLimit,
		apiKey.CurrentUsage,
		apiKey.CreatedAt,
		apiKey.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByPrefix retrieves the key with the given display prefix (for authentication)
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, keyPrefix string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1`
	return r.getOne(ctx, query, keyPrefix)
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return r.getOne(ctx, query, keyID)
}

func (r *APIKeyRepository) getOne(ctx context.Context, query string, arg any) (*models.APIKey, error) {
	k := &models.APIKey{}
	err := scanAPIKey(r.db.QueryRowContext(ctx, query, arg), k)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// List returns every API key, newest first
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys ORDER BY created_at DESC`
	return r.query(ctx, query)
}

func (r *APIKeyRepository) query(ctx context.Context, query string, args ...any) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k := &models.APIKey{}
		if err := scanAPIKey(rows, k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ConsumeUsage spends one unit of a key's quota. The update only applies while the
// key is active, unexpired and below its limit, so concurrent callers can never push
// current_usage past usage_limit. It returns the updated key, or nil when nothing
// was consumed.
func (r *APIKeyRepository) ConsumeUsage(ctx context.Context, keyID string, now time.Time) (*models.APIKey, error) {
	query := `
		UPDATE api_keys
		SET current_usage = current_usage + 1, last_used_at = $2
		WHERE id = $1
		  AND status = 'active'
		  AND expires_at > $2
		  AND current_usage < usage_limit
		RETURNING ` + apiKeyColumns

	k := &models.APIKey{}
	err := scanAPIKey(r.db.QueryRowContext(ctx, query, keyID, now), k)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Revoke marks an active key as revoked. It reports whether a key changed state.
func (r *APIKeyRepository) Revoke(ctx context.Context, keyID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE api_keys SET status = 'revoked' WHERE id = $1 AND status = 'active'`, keyID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindExpiringKeys returns active keys that expire within warningDays days and have
// not yet had a notification email sent.
func (r *APIKeyRepository) FindExpiringKeys(ctx context.Context, warningDays int) ([]*models.APIKey, error) {
	cutoff := time.Now().Add(time.Duration(warningDays) * 24 * time.Hour)
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE status = 'active'
		  AND expires_at > NOW()
		  AND expires_at <= $1
		  AND expiry_notification_sent_at IS NULL
		ORDER BY expires_at ASC
	`
	return r.query(ctx, query, cutoff)
}

// MarkExpiryNotificationSent records that the expiry warning email was sent for a key,
// preventing duplicate emails on subsequent job runs.
func (r *APIKeyRepository) MarkExpiryNotificationSent(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET expiry_notification_sent_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), keyID)
	return err
}
