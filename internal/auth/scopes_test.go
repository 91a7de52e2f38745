package auth

import (
	"testing"

	"github.com/xplorixa/portal/internal/db/models"
)

func TestRequiredScope(t *testing.T) {
	if s, ok := RequiredScope("GET", "/api/users/count"); !ok || s != models.ScopeReadOnly {
		t.Errorf("count route = %s, %v", s, ok)
	}
	if s, ok := RequiredScope("GET", "/api/users/list"); !ok || s != models.ScopeFullAccess {
		t.Errorf("list route = %s, %v", s, ok)
	}
	if _, ok := RequiredScope("POST", "/api/users/list"); ok {
		t.Error("unknown route reported a scope")
	}
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]models.Scope{
		"READ_ONLY":      models.ScopeReadOnly,
		" full_access ": models.ScopeFullAccess,
	} {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Errorf("ParseScope(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseScope("ADMIN"); err == nil {
		t.Error("ParseScope(ADMIN) accepted")
	}
}
