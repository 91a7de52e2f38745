// endpoint_repository.go implements EndpointRepository for the admin-managed directory
// of external endpoints. Entries are created and deleted; there is no update path.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/xplorixa/portal/internal/db/models"
)

// EndpointRepository handles custom endpoint database operations
type EndpointRepository struct {
	db *sqlx.DB
}

// NewEndpointRepository creates a new EndpointRepository
func NewEndpointRepository(db *sqlx.DB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

// Create inserts a directory entry with a server-assigned ID and timestamp.
func (r *EndpointRepository) Create(ctx context.Context, e *models.CustomEndpoint) error {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO custom_endpoints (id, name, description, target_url, method, category, requires_auth, created_at)
		VALUES (:id, :name, :description, :target_url, :method, :category, :requires_auth, :created_at)`
	_, err := r.db.NamedExecContext(ctx, query, e)
	return err
}

// GetByID retrieves a directory entry, or nil when none exists
func (r *EndpointRepository) GetByID(ctx context.Context, id string) (*models.CustomEndpoint, error) {
	var e models.CustomEndpoint
	err := r.db.GetContext(ctx, &e, `SELECT * FROM custom_endpoints WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns every directory entry, newest first
func (r *EndpointRepository) List(ctx context.Context) ([]*models.CustomEndpoint, error) {
	endpoints := make([]*models.CustomEndpoint, 0)
	err := r.db.SelectContext(ctx, &endpoints, `SELECT * FROM custom_endpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}

// Delete hard-deletes a directory entry. It reports whether a row was removed.
func (r *EndpointRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM custom_endpoints WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
