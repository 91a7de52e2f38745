package registration

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xplorixa/portal/internal/apperrors"
)

var (
	pngBytes  = append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 32)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 32)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 32)...)

	allowedTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}
)

func validInput() *Input {
	return &Input{
		Form: Form{
			FullName:        "Ada Lovelace",
			Email:           "ada@example.com",
			Phone:           "0123456789",
			DOB:             "1990-05-17",
			Password:        "Secret1",
			ConfirmPassword: "Secret1",
			Terms:           true,
		},
		Avatar: &Avatar{Filename: "me.png", Data: pngBytes},
	}
}

func newTestValidator() *Validator {
	v := NewValidator(5_000_000, allowedTypes)
	v.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	return v
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Fields
}

func TestValidate_Valid(t *testing.T) {
	ct, err := newTestValidator().Validate(validInput())
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
}

func TestValidate_JPEG(t *testing.T) {
	in := validInput()
	in.Avatar.Data = jpegBytes
	ct, err := newTestValidator().Validate(in)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)
}

func TestValidate_FieldMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
		want   string
	}{
		{"short name", func(in *Input) { in.FullName = "A" }, "fullName", "Full name must be at least 2 characters"},
		{"bad email", func(in *Input) { in.Email = "not-an-email" }, "email", "Invalid email address"},
		{"empty email", func(in *Input) { in.Email = "" }, "email", "Invalid email address"},
		{"short phone", func(in *Input) { in.Phone = "12345" }, "phone", "Phone number must be at least 10 digits"},
		{"future dob", func(in *Input) { in.DOB = "2030-01-01" }, "dob", "Date of birth must be in the past"},
		{"garbage dob", func(in *Input) { in.DOB = "yesterday" }, "dob", "Date of birth must be in the past"},
		{"short password", func(in *Input) { in.Password, in.ConfirmPassword = "Ab1", "Ab1" }, "password", "Password must be at least 6 characters"},
		{"no uppercase", func(in *Input) { in.Password, in.ConfirmPassword = "secret1", "secret1" }, "password", "Must contain an uppercase letter"},
		{"no digit", func(in *Input) { in.Password, in.ConfirmPassword = "Secrets", "Secrets" }, "password", "Must contain a number"},
		{"mismatch", func(in *Input) { in.ConfirmPassword = "Secret2" }, "confirmPassword", "Passwords don't match"},
		{"terms", func(in *Input) { in.Terms = false }, "terms", "You must accept the terms"},
		{"no picture", func(in *Input) { in.Avatar = nil }, "profileImage", "Profile picture is required."},
		{"empty picture", func(in *Input) { in.Avatar.Data = nil }, "profileImage", "Profile picture is required."},
		{"too large", func(in *Input) { in.Avatar.Data = append(bytes.Clone(pngBytes), make([]byte, 5_000_000)...) }, "profileImage", "Max file size is 5MB."},
		{"gif", func(in *Input) { in.Avatar.Data = gifBytes }, "profileImage", ".jpg, .jpeg, .png and .webp files are accepted."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(in)
			_, err := newTestValidator().Validate(in)
			fields := fieldErrors(t, err)
			assert.Equal(t, tt.want, fields[tt.field])
			assert.Len(t, fields, 1, "only %s should fail: %v", tt.field, fields)
		})
	}
}

func TestValidate_ExactlyMaxSizeAccepted(t *testing.T) {
	in := validInput()
	in.Avatar.Data = append(bytes.Clone(pngBytes), make([]byte, 5_000_000-len(pngBytes))...)
	_, err := newTestValidator().Validate(in)
	assert.NoError(t, err)
}

func TestValidate_CollectsAllFields(t *testing.T) {
	_, err := newTestValidator().Validate(&Input{})
	fields := fieldErrors(t, err)
	for _, f := range []string{"fullName", "email", "phone", "dob", "password", "terms", "profileImage"} {
		assert.Contains(t, fields, f)
	}
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
