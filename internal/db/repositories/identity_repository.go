// identity_repository.go implements IdentityRepository, the credential store used by
// the local identity provider.
package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xplorixa/portal/internal/db/models"
)

// IdentityRepository handles identity database operations
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity. The email is stored lower-cased; ErrDuplicate is
// returned when the address is already registered.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	identity.ID = uuid.New().String()
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	identity.CreatedAt = time.Now()
	identity.UpdatedAt = identity.CreatedAt

	query := `
		INSERT INTO identities (id, email, password_hash, display_name, photo_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.DisplayName,
		identity.PhotoURL,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByEmail retrieves an identity by email (case-insensitive)
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `
		SELECT id, email, password_hash, display_name, photo_url, created_at, updated_at
		FROM identities
		WHERE lower(email) = lower($1)
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

// GetByID retrieves an identity by ID
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `
		SELECT id, email, password_hash, display_name, photo_url, created_at, updated_at
		FROM identities
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *IdentityRepository) scanOne(row *sql.Row) (*models.Identity, error) {
	identity := &models.Identity{}
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.DisplayName,
		&identity.PhotoURL,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// UpdateProfile sets the display name and avatar reference of an identity.
func (r *IdentityRepository) UpdateProfile(ctx context.Context, id, displayName, photoURL string) error {
	query := `
		UPDATE identities
		SET display_name = $2, photo_url = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, displayName, photoURL, time.Now())
	return err
}

// Delete removes an identity
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	return err
}
