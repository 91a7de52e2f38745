// Package auth - scopes.go parses gateway key scopes from requests and states which
// scope each key-gated route requires.
package auth

import (
	"fmt"
	"strings"

	"github.com/xplorixa/portal/internal/db/models"
)

// Gateway routes and the scope each requires. FULL_ACCESS keys satisfy every entry.
var gatewayRouteScopes = map[string]models.Scope{
	"GET /api/users/count": models.ScopeReadOnly,
	"GET /api/users/list":  models.ScopeFullAccess,
}

// RequiredScope returns the scope a gateway route needs, and false for unknown routes.
func RequiredScope(method, path string) (models.Scope, bool) {
	s, ok := gatewayRouteScopes[method+" "+path]
	return s, ok
}

// ParseScope normalizes a scope name from user input.
func ParseScope(s string) (models.Scope, error) {
	scope := models.Scope(strings.ToUpper(strings.TrimSpace(s)))
	if !scope.Valid() {
		return "", fmt.Errorf("invalid scope %q (must be %s or %s)", s, models.ScopeReadOnly, models.ScopeFullAccess)
	}
	return scope, nil
}
