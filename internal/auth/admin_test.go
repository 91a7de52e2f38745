package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplorixa/portal/internal/db/models"
)

type fakeProfiles struct {
	byUID map[string]*models.UserProfile
	calls int
	err   error
}

func (f *fakeProfiles) GetByUID(_ context.Context, uid string) (*models.UserProfile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byUID[uid], nil
}

const overrideEmail = "rowboxsiw@gmail.com"

func TestResolve_OverrideWithoutProfile(t *testing.T) {
	r := NewAdminResolver(&fakeProfiles{}, []string{overrideEmail}, 0, 0)

	p, err := r.Resolve(context.Background(), "uid-root", overrideEmail)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.True(t, p.Synthesized)
	require.NotNil(t, p.Profile)
	assert.Equal(t, models.RoleAdmin, p.Profile.Role)
	assert.Equal(t, SuperAdminName, p.Profile.FullName)
	assert.Equal(t, "uid-root", p.Profile.UID)
}

func TestResolve_OverrideIsCaseInsensitive(t *testing.T) {
	r := NewAdminResolver(&fakeProfiles{}, []string{" RowBoxSiw@Gmail.com "}, 0, 0)
	assert.True(t, r.IsAllowListed(overrideEmail))
}

func TestResolve_ProfileRole(t *testing.T) {
	profiles := &fakeProfiles{byUID: map[string]*models.UserProfile{
		"uid-admin": {UID: "uid-admin", Role: models.RoleAdmin},
		"uid-user":  {UID: "uid-user", Role: models.RoleUser},
	}}
	r := NewAdminResolver(profiles, []string{overrideEmail}, 0, 0)

	p, err := r.Resolve(context.Background(), "uid-admin", "admin@example.com")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.False(t, p.Synthesized)

	p, err = r.Resolve(context.Background(), "uid-user", "user@example.com")
	require.NoError(t, err)
	assert.False(t, p.IsAdmin)
}

func TestResolve_OverrideWinsOverUserRole(t *testing.T) {
	profiles := &fakeProfiles{byUID: map[string]*models.UserProfile{
		"uid-1": {UID: "uid-1", Role: models.RoleUser},
	}}
	r := NewAdminResolver(profiles, []string{overrideEmail}, 0, 0)

	p, err := r.Resolve(context.Background(), "uid-1", overrideEmail)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.Equal(t, models.RoleUser, p.Profile.Role)
}

func TestResolve_MissingProfileNoOverride(t *testing.T) {
	r := NewAdminResolver(&fakeProfiles{}, nil, 0, 0)

	p, err := r.Resolve(context.Background(), "uid-x", "x@example.com")
	require.NoError(t, err)
	assert.False(t, p.IsAdmin)
	assert.Nil(t, p.Profile)
}

func TestResolve_LookupError(t *testing.T) {
	r := NewAdminResolver(&fakeProfiles{err: errors.New("db down")}, nil, 0, 0)
	_, err := r.Resolve(context.Background(), "uid-x", "x@example.com")
	assert.Error(t, err)
}

func TestSetAdminEmails_Reload(t *testing.T) {
	r := NewAdminResolver(&fakeProfiles{}, []string{overrideEmail}, 0, 0)
	r.SetAdminEmails([]string{"ops@example.com"})

	assert.False(t, r.IsAllowListed(overrideEmail))
	assert.True(t, r.IsAllowListed("ops@example.com"))
}

func TestResolve_CacheAndInvalidate(t *testing.T) {
	profiles := &fakeProfiles{byUID: map[string]*models.UserProfile{
		"uid-1": {UID: "uid-1", Role: models.RoleUser},
	}}
	r := NewAdminResolver(profiles, nil, 16, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "uid-1", "u@example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, profiles.calls)

	r.Invalidate("uid-1")
	_, err := r.Resolve(context.Background(), "uid-1", "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, profiles.calls)
}
