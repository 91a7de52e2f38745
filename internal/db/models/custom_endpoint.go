package models

import "time"

// EndpointMethods lists the HTTP methods a directory entry may declare.
var EndpointMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

// CustomEndpoint is an admin-registered external endpoint listed in the API docs.
// It is documentation only; requests are never forwarded.
type CustomEndpoint struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	TargetURL    string    `db:"target_url" json:"targetUrl"`
	Method       string    `db:"method" json:"method"`
	Category     string    `db:"category" json:"category"`
	RequiresAuth bool      `db:"requires_auth" json:"requiresAuth"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
