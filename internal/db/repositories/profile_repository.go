// profile_repository.go implements ProfileRepository, the user profile store behind
// registration, the auth gate, the admin console and the gateway list endpoint.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/xplorixa/portal/internal/db/models"
)

// ProfileRepository handles user profile database operations
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `uid, email, full_name, phone_number, dob, photo_url, role, status, created_at`

// Create inserts a profile keyed by its UID. CreatedAt is set when zero.
func (r *ProfileRepository) Create(ctx context.Context, p *models.UserProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.UID,
		p.Email,
		p.FullName,
		p.PhoneNumber,
		p.DOB,
		p.PhotoURL,
		p.Role,
		p.Status,
		p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByUID retrieves a profile, or nil when none exists.
func (r *ProfileRepository) GetByUID(ctx context.Context, uid string) (*models.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE uid = $1`

	p := &models.UserProfile{}
	err := scanProfile(r.db.QueryRowContext(ctx, query, uid), p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, p *models.UserProfile) error {
	return row.Scan(
		&p.UID,
		&p.Email,
		&p.FullName,
		&p.PhoneNumber,
		&p.DOB,
		&p.PhotoURL,
		&p.Role,
		&p.Status,
		&p.CreatedAt,
	)
}

// List returns every profile, newest first.
func (r *ProfileRepository) List(ctx context.Context) ([]*models.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles ORDER BY created_at DESC`
	return r.query(ctx, query)
}

// ListPage returns one page of profiles, newest first, plus the total row count.
func (r *ProfileRepository) ListPage(ctx context.Context, limit, offset int) ([]*models.UserProfile, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_profiles`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + profileColumns + ` FROM user_profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	profiles, err := r.query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func (r *ProfileRepository) query(ctx context.Context, query string, args ...any) ([]*models.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]*models.UserProfile, 0)
	for rows.Next() {
		p := &models.UserProfile{}
		if err := scanProfile(rows, p); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ToggleStatus flips active to banned and anything else to active in a single
// statement. It returns the new status, or "" when the profile does not exist.
func (r *ProfileRepository) ToggleStatus(ctx context.Context, uid string) (models.Status, error) {
	query := `
		UPDATE user_profiles
		SET status = CASE WHEN status = 'active' THEN 'banned' ELSE 'active' END
		WHERE uid = $1
		RETURNING status
	`

	var status models.Status
	err := r.db.QueryRowContext(ctx, query, uid).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return status, err
}

// Delete hard-deletes a profile. It reports whether a row was removed.
func (r *ProfileRepository) Delete(ctx context.Context, uid string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE uid = $1`, uid)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountByStatus counts profiles in the given status
func (r *ProfileRepository) CountByStatus(ctx context.Context, status models.Status) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_profiles WHERE status = $1`, status).Scan(&n)
	return n, err
}

// CountCreatedSince counts profiles created at or after since
func (r *ProfileRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_profiles WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}

// DailyRegistrations returns profile counts per UTC calendar day (YYYY-MM-DD)
// for profiles created at or after since. Days without registrations are absent.
func (r *ProfileRepository) DailyRegistrations(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM user_profiles
		WHERE created_at >= $1
		GROUP BY day
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}
