// Package models - audit_log.go defines the AuditLog model for recording admin
// mutations, capturing actor, action, affected resource, client IP, and metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking admin actions
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"userId,omitempty"`
	Action       string                 `json:"action"`                 // "user.banned", "api_key.issued"
	ResourceType *string                `json:"resourceType,omitempty"` // "user", "api_key", "endpoint"
	ResourceID   *string                `json:"resourceId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    *string                `json:"ipAddress,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}
