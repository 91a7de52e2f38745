// Package apperrors defines the error kinds shared by the registration flow, the
// auth gate and the admin handlers. Callers wrap these with fmt.Errorf("...: %w")
// and HTTP handlers map them to status codes with errors.Is / errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// InvalidCredentialsMessage is the only message a failed login ever shows.
const InvalidCredentialsMessage = "Invalid email or password."

var (
	// ErrValidation marks input that failed field constraints.
	ErrValidation = errors.New("validation failed")

	// ErrIdentityExists is returned when the email is already registered.
	ErrIdentityExists = errors.New("email already registered")

	// ErrWeakCredential is returned when the password fails the credential policy.
	ErrWeakCredential = errors.New("password does not meet the credential policy")

	// ErrInvalidCredentials is returned on a failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrStorage wraps object storage failures.
	ErrStorage = errors.New("storage error")

	// ErrPersistence wraps database write/read failures.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the principal may not perform the action.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError carries per-field messages. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add records the first message for field; later messages for the same field are dropped.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns e when it has field errors, otherwise nil.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) true for any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HTTPStatus maps an error kind to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrWeakCredential):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIdentityExists):
		return http.StatusConflict
	case errors.Is(err, ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a caller. Internal failures
// collapse to a generic message.
func PublicMessage(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "Validation failed"
	case errors.Is(err, ErrInvalidCredentials):
		return InvalidCredentialsMessage
	case errors.Is(err, ErrIdentityExists):
		return "Email is already registered"
	case errors.Is(err, ErrWeakCredential):
		return "Password is too weak"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrStorage):
		return "Failed to store uploaded file"
	default:
		return "Internal server error"
	}
}
