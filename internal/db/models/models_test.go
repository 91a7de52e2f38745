package models

import (
	"testing"
	"time"
)

func TestScopeAllows(t *testing.T) {
	tests := []struct {
		have, need Scope
		want       bool
	}{
		{ScopeFullAccess, ScopeFullAccess, true},
		{ScopeFullAccess, ScopeReadOnly, true},
		{ScopeReadOnly, ScopeReadOnly, true},
		{ScopeReadOnly, ScopeFullAccess, false},
	}
	for _, tt := range tests {
		if got := tt.have.Allows(tt.need); got != tt.want {
			t.Errorf("%s.Allows(%s) = %v, want %v", tt.have, tt.need, got, tt.want)
		}
	}
}

func TestAPIKey_Usable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	base := APIKey{
		Status:     KeyStatusActive,
		UsageLimit: 10,
		ExpiresAt:  now.Add(time.Hour),
	}

	if !base.Usable(now) {
		t.Error("active, unexpired key with quota should be usable")
	}

	revoked := base
	revoked.Status = KeyStatusRevoked
	if revoked.Usable(now) {
		t.Error("revoked key should not be usable")
	}

	expired := base
	expired.ExpiresAt = now
	if expired.Usable(now) {
		t.Error("key expiring exactly now should not be usable")
	}

	exhausted := base
	exhausted.CurrentUsage = 10
	if exhausted.Usable(now) {
		t.Error("key at its usage limit should not be usable")
	}
	if exhausted.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", exhausted.Remaining())
	}
}
