// Package services implements business logic that coordinates across repositories
// and shared infrastructure: API key issuance and the admin dashboard statistics.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xplorixa/portal/internal/apperrors"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/db/repositories"
)

// maxIssueAttempts bounds retries when a generated display prefix collides.
const maxIssueAttempts = 3

// APIKeyStore is the persistence the issuer needs.
type APIKeyStore interface {
	Create(ctx context.Context, apiKey *models.APIKey) error
}

// APIKeyIssuer mints gateway keys with fixed issuance defaults.
type APIKeyIssuer struct {
	store      APIKeyStore
	prefix     string
	usageLimit int
	ttl        time.Duration
	now        func() time.Time
}

// NewAPIKeyIssuer creates an issuer. Keys are "<prefix>_<random>", carry usageLimit
// requests and expire ttl after issuance.
func NewAPIKeyIssuer(store APIKeyStore, prefix string, usageLimit int, ttl time.Duration) *APIKeyIssuer {
	return &APIKeyIssuer{
		store:      store,
		prefix:     prefix,
		usageLimit: usageLimit,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue creates and persists a key for scope. The plaintext key is returned once and
// never stored.
func (i *APIKeyIssuer) Issue(ctx context.Context, scope models.Scope, creatorEmail string) (*models.APIKey, string, error) {
	if !scope.Valid() {
		verr := apperrors.NewValidationError()
		verr.Add("scope", "Scope must be READ_ONLY or FULL_ACCESS")
		return nil, "", verr
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		plaintext, hash, displayPrefix, err := auth.GenerateAPIKey(i.prefix)
		if err != nil {
			return nil, "", err
		}

		now := i.now().UTC()
		key := &models.APIKey{
			ID:           uuid.New().String(),
			KeyHash:      hash,
			KeyPrefix:    displayPrefix,
			CreatedBy:    creatorEmail,
			Scope:        scope,
			Status:       models.KeyStatusActive,
			UsageLimit:   i.usageLimit,
			CurrentUsage: 0,
			CreatedAt:    now,
			ExpiresAt:    now.Add(i.ttl),
		}

		err = i.store.Create(ctx, key)
		if errors.Is(err, repositories.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
		}
		return key, plaintext, nil
	}
	return nil, "", fmt.Errorf("%w: could not allocate a unique key prefix", apperrors.ErrPersistence)
}
