// Package models defines the database model types for the portal.
// Each type corresponds to a database table; query logic belongs in the repositories layer.
package models

import "time"

// Scope is the access level attached to a gateway API key.
type Scope string

const (
	ScopeReadOnly   Scope = "READ_ONLY"
	ScopeFullAccess Scope = "FULL_ACCESS"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeReadOnly || s == ScopeFullAccess
}

// Allows reports whether a key with scope s may call a route requiring required.
// FULL_ACCESS satisfies every route; READ_ONLY only READ_ONLY routes.
func (s Scope) Allows(required Scope) bool {
	if s == ScopeFullAccess {
		return true
	}
	return s == required
}

// KeyStatus is the lifecycle state of an API key.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRevoked KeyStatus = "revoked"
)

// APIKey represents a gateway key issued by an administrator
type APIKey struct {
	ID                       string
	KeyHash                  string // Bcrypt hash of the full key
	KeyPrefix                string // Leading characters of the key, unique, used for lookup and display
	CreatedBy                string // Email of the issuing admin
	Scope                    Scope
	Status                   KeyStatus
	UsageLimit               int
	CurrentUsage             int
	CreatedAt                time.Time
	ExpiresAt                time.Time
	LastUsedAt               *time.Time
	ExpiryNotificationSentAt *time.Time // Set when expiry warning email was sent
}

// IsExpired reports whether the key's expiry has passed at now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// Usable reports whether the key can still authorize a request at now.
func (k *APIKey) Usable(now time.Time) bool {
	return k.Status == KeyStatusActive && !k.IsExpired(now) && k.CurrentUsage < k.UsageLimit
}

// Remaining returns how many more requests the key may make.
func (k *APIKey) Remaining() int {
	if r := k.UsageLimit - k.CurrentUsage; r > 0 {
		return r
	}
	return 0
}
