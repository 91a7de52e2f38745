package registration

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xplorixa/portal/internal/apperrors"
	"github.com/xplorixa/portal/internal/db/models"
)

// Form is the registration form without the picture.
type Form struct {
	FullName        string `json:"fullName" form:"fullName" validate:"min=2"`
	Email           string `json:"email" form:"email" validate:"required,email"`
	Phone           string `json:"phone" form:"phone" validate:"min=10"`
	DOB             string `json:"dob" form:"dob" validate:"pastdate"`
	Password        string `json:"password" form:"password" validate:"min=6,uppercase,digit"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword" validate:"eqfield=Password"`
	Terms           bool   `json:"terms" form:"terms" validate:"accepted"`
}

// Avatar is an uploaded profile picture.
type Avatar struct {
	Filename string
	Data     []byte
}

// Input is everything Register needs.
type Input struct {
	Form
	Avatar *Avatar
}

// messages maps "field.tag" (or "field" for any tag) to the message shown to the user.
var messages = map[string]string{
	"fullName":              "Full name must be at least 2 characters",
	"email":                 "Invalid email address",
	"phone":                 "Phone number must be at least 10 digits",
	"dob":                   "Date of birth must be in the past",
	"password.min":          "Password must be at least 6 characters",
	"password.uppercase":    "Must contain an uppercase letter",
	"password.digit":        "Must contain a number",
	"confirmPassword":       "Passwords don't match",
	"terms":                 "You must accept the terms",
	"profileImage.required": "Profile picture is required.",
	"profileImage.type":     ".jpg, .jpeg, .png and .webp files are accepted.",
}

// Validator checks registration input.
type Validator struct {
	v            *validator.Validate
	maxBytes     int64
	allowedTypes []string
	now          func() time.Time
}

// NewValidator builds a Validator for pictures up to maxBytes of the allowed MIME types.
func NewValidator(maxBytes int64, allowedTypes []string) *Validator {
	rv := &Validator{
		v:            validator.New(validator.WithRequiredStructEnabled()),
		maxBytes:     maxBytes,
		allowedTypes: allowedTypes,
		now:          time.Now,
	}

	rv.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(rv.v, "uppercase", containsFunc(func(r rune) bool { return r >= 'A' && r <= 'Z' }))
	mustRegister(rv.v, "digit", containsFunc(func(r rune) bool { return r >= '0' && r <= '9' }))
	mustRegister(rv.v, "accepted", func(fl validator.FieldLevel) bool { return fl.Field().Bool() })
	mustRegister(rv.v, "pastdate", func(fl validator.FieldLevel) bool {
		dob, err := time.Parse(models.DateLayout, fl.Field().String())
		return err == nil && dob.Before(rv.now())
	})
	return rv
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func containsFunc(match func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), match) >= 0
	}
}

// Validate returns a *apperrors.ValidationError listing the first failure per field,
// or nil. On success it also returns the sniffed MIME type of the picture.
func (rv *Validator) Validate(in *Input) (string, error) {
	verr := apperrors.NewValidationError()

	if err := rv.v.Struct(&in.Form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return "", err
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), messageFor(fe.Field(), fe.Tag()))
		}
	}

	contentType := rv.checkAvatar(in.Avatar, verr)
	return contentType, verr.OrNil()
}

func (rv *Validator) checkAvatar(a *Avatar, verr *apperrors.ValidationError) string {
	if a == nil || len(a.Data) == 0 {
		verr.Add("profileImage", messages["profileImage.required"])
		return ""
	}
	if int64(len(a.Data)) > rv.maxBytes {
		verr.Add("profileImage", fmt.Sprintf("Max file size is %dMB.", rv.maxBytes/1_000_000))
		return ""
	}
	contentType, _, _ := strings.Cut(http.DetectContentType(a.Data), ";")
	if !slices.Contains(rv.allowedTypes, contentType) {
		verr.Add("profileImage", messages["profileImage.type"])
		return ""
	}
	return contentType
}

func messageFor(field, tag string) string {
	if msg, ok := messages[field+"."+tag]; ok {
		return msg
	}
	if msg, ok := messages[field]; ok {
		return msg
	}
	return "Invalid value"
}
