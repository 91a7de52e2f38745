// Package auth - admin.go resolves the session principal for the auth gate: it loads
// the caller's profile (through a short-lived cache) and decides isAdmin from the
// profile role or the configured admin allow-list.
package auth

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xplorixa/portal/internal/db/models"
)

// SuperAdminName is the display name of a profile synthesized for an allow-listed
// email that has no profile record.
const SuperAdminName = "Super Admin"

// ProfileLookup is the read side of the profile store the resolver needs.
type ProfileLookup interface {
	GetByUID(ctx context.Context, uid string) (*models.UserProfile, error)
}

// Principal is the resolved identity behind a session.
type Principal struct {
	UID     string              `json:"uid"`
	Email   string              `json:"email"`
	IsAdmin bool                `json:"isAdmin"`
	Profile *models.UserProfile `json:"profile"`
	// Synthesized is true when Profile was fabricated from the allow-list.
	Synthesized bool `json:"synthesized,omitempty"`
}

// AdminResolver decides admin rights. The allow-list can be swapped at runtime.
type AdminResolver struct {
	profiles ProfileLookup
	allow    atomic.Pointer[map[string]struct{}]
	cache    *expirable.LRU[string, *models.UserProfile]
}

// NewAdminResolver creates a resolver. A cacheSize of zero disables caching.
func NewAdminResolver(profiles ProfileLookup, adminEmails []string, cacheSize int, cacheTTL time.Duration) *AdminResolver {
	r := &AdminResolver{profiles: profiles}
	if cacheSize > 0 {
		r.cache = expirable.NewLRU[string, *models.UserProfile](cacheSize, nil, cacheTTL)
	}
	r.SetAdminEmails(adminEmails)
	return r
}

// SetAdminEmails replaces the allow-list. Matching is case-insensitive.
func (r *AdminResolver) SetAdminEmails(emails []string) {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			set[e] = struct{}{}
		}
	}
	r.allow.Store(&set)
}

// IsAllowListed reports whether email is on the admin allow-list.
func (r *AdminResolver) IsAllowListed(email string) bool {
	set := r.allow.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[normalizeEmail(email)]
	return ok
}

// Resolve loads the profile for uid and computes isAdmin. A missing profile is not an
// error: an allow-listed email gets a synthesized admin profile, anyone else gets a
// principal without a profile and without admin rights.
func (r *AdminResolver) Resolve(ctx context.Context, uid, email string) (*Principal, error) {
	profile, err := r.lookup(ctx, uid)
	if err != nil {
		return nil, err
	}

	p := &Principal{UID: uid, Email: email, Profile: profile}
	override := r.IsAllowListed(email)

	if profile == nil {
		if override {
			p.Profile = &models.UserProfile{
				UID:      uid,
				Email:    email,
				FullName: SuperAdminName,
				Role:     models.RoleAdmin,
				Status:   models.StatusActive,
			}
			p.Synthesized = true
			p.IsAdmin = true
		}
		return p, nil
	}

	p.IsAdmin = profile.Role == models.RoleAdmin || override
	return p, nil
}

func (r *AdminResolver) lookup(ctx context.Context, uid string) (*models.UserProfile, error) {
	if r.cache != nil {
		if p, ok := r.cache.Get(uid); ok {
			return p, nil
		}
	}
	p, err := r.profiles.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p != nil && r.cache != nil {
		r.cache.Add(uid, p)
	}
	return p, nil
}

// Invalidate drops a cached profile after an admin changes or deletes it.
func (r *AdminResolver) Invalidate(uid string) {
	if r.cache != nil {
		r.cache.Remove(uid)
	}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
