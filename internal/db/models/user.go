// Package models - user.go defines the UserProfile record written at registration and
// the Identity record owned by the credential provider.
package models

import (
	"encoding/json"
	"time"
)

// Role is the access level stored on a profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Status is the account state an administrator controls.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBanned   Status = "banned"
)

// Toggled returns the status an admin toggle moves to: active becomes banned,
// anything else becomes active.
func (s Status) Toggled() Status {
	if s == StatusActive {
		return StatusBanned
	}
	return StatusActive
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusBanned:
		return true
	}
	return false
}

// DateLayout is the wire and storage format for a date of birth.
const DateLayout = "2006-01-02"

// UserProfile is the profile document keyed by the identity's UID.
type UserProfile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	FullName    string    `json:"fullName"`
	PhoneNumber string    `json:"phoneNumber"`
	DOB         time.Time `json:"-"`
	PhotoURL    string    `json:"photoURL"`
	Role        Role      `json:"role"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DOBString renders the date of birth as YYYY-MM-DD.
func (p *UserProfile) DOBString() string {
	if p.DOB.IsZero() {
		return ""
	}
	return p.DOB.Format(DateLayout)
}

// MarshalJSON renders DOB as a plain date.
func (p UserProfile) MarshalJSON() ([]byte, error) {
	type plain UserProfile
	return json.Marshal(struct {
		plain
		DOB string `json:"dob"`
	}{plain: plain(p), DOB: p.DOBString()})
}

// Identity is the credential record behind a profile. The password hash never
// leaves the identity provider.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	PhotoURL     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
