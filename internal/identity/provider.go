// Package identity is the credential provider behind registration and login. The
// Provider interface is what the rest of the portal depends on; LocalProvider
// implements it with bcrypt password hashes in Postgres.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/xplorixa/portal/internal/apperrors"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/db/repositories"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password the provider accepts.
const MinPasswordLength = 6

// PasswordCost is the bcrypt cost for stored password hashes.
var PasswordCost = bcrypt.DefaultCost

// Provider creates and authenticates identities.
type Provider interface {
	// Create registers email+password and returns the new identity.
	// Fails with apperrors.ErrIdentityExists or apperrors.ErrWeakCredential.
	Create(ctx context.Context, email, password string) (*models.Identity, error)
	// UpdateProfile sets the display name and avatar reference.
	UpdateProfile(ctx context.Context, id, displayName, photoURL string) error
	// Authenticate checks credentials. Any failure is apperrors.ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*models.Identity, error)
	// Delete removes an identity; used only by registration compensation.
	Delete(ctx context.Context, id string) error
}

// Store is the persistence the local provider needs.
type Store interface {
	Create(ctx context.Context, identity *models.Identity) error
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	UpdateProfile(ctx context.Context, id, displayName, photoURL string) error
	Delete(ctx context.Context, id string) error
}

// LocalProvider stores bcrypt hashes through a Store.
type LocalProvider struct {
	store Store
}

// NewLocalProvider creates a LocalProvider
func NewLocalProvider(store Store) *LocalProvider {
	return &LocalProvider{store: store}
}

// CheckPasswordPolicy enforces the credential policy: at least MinPasswordLength
// characters with one uppercase letter and one digit.
func CheckPasswordPolicy(password string) error {
	var upper, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	switch {
	case len(password) < MinPasswordLength:
		return fmt.Errorf("%w: must be at least %d characters", apperrors.ErrWeakCredential, MinPasswordLength)
	case !upper:
		return fmt.Errorf("%w: must contain an uppercase letter", apperrors.ErrWeakCredential)
	case !digit:
		return fmt.Errorf("%w: must contain a number", apperrors.ErrWeakCredential)
	}
	return nil
}

// Create registers a new identity
func (p *LocalProvider) Create(ctx context.Context, email, password string) (*models.Identity, error) {
	if err := CheckPasswordPolicy(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrWeakCredential, err)
	}

	identity := &models.Identity{Email: email, PasswordHash: string(hash)}
	if err := p.store.Create(ctx, identity); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperrors.ErrIdentityExists
		}
		return nil, fmt.Errorf("%w: create identity: %v", apperrors.ErrPersistence, err)
	}
	return identity, nil
}

// UpdateProfile sets the display name and avatar reference
func (p *LocalProvider) UpdateProfile(ctx context.Context, id, displayName, photoURL string) error {
	if err := p.store.UpdateProfile(ctx, id, displayName, photoURL); err != nil {
		return fmt.Errorf("%w: update identity: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

// Authenticate verifies email and password
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*models.Identity, error) {
	identity, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: load identity: %v", apperrors.ErrPersistence, err)
	}
	if identity == nil {
		// Spend comparable time so unknown emails are not distinguishable by latency.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, apperrors.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return identity, nil
}

// Delete removes an identity
func (p *LocalProvider) Delete(ctx context.Context, id string) error {
	if err := p.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete identity: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
