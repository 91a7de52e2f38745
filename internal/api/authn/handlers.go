// Package authn implements the public sign-up and sign-in endpoints and the session
// introspection endpoint the console uses to decide which views to show.
package authn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xplorixa/portal/internal/api/httputil"
	"github.com/xplorixa/portal/internal/apperrors"
	"github.com/xplorixa/portal/internal/auth"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/middleware"
	"github.com/xplorixa/portal/internal/registration"
	"github.com/xplorixa/portal/internal/telemetry"
)

// Multipart field names of the registration form's picture. The first is preferred.
var avatarFields = []string{"image", "profileImage"}

// Registrar runs a registration.
type Registrar interface {
	Register(ctx context.Context, in *registration.Input) (*models.UserProfile, error)
}

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.Identity, error)
}

// Handlers serves /api/v1/auth.
type Handlers struct {
	registrar      Registrar
	identities     Authenticator
	resolver       middleware.PrincipalResolver
	sessionTTL     time.Duration
	maxAvatarBytes int64
}

// NewHandlers creates the auth handlers. maxAvatarBytes bounds how much of an uploaded
// picture is read before the validator rejects it as too large.
func NewHandlers(registrar Registrar, identities Authenticator, resolver middleware.PrincipalResolver, sessionTTL time.Duration, maxAvatarBytes int64) *Handlers {
	return &Handlers{
		registrar:      registrar,
		identities:     identities,
		resolver:       resolver,
		sessionTTL:     sessionTTL,
		maxAvatarBytes: maxAvatarBytes,
	}
}

// SessionResponse is returned by register and login.
type SessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      *auth.Principal `json:"user"`
}

// LoginRequest is the login body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Register
// @Description  Creates an account from a multipart form with a profile picture. Role and status are always user/active.
// @Tags         Authentication
// @Accept       multipart/form-data
// @Produce      json
// @Param        fullName         formData  string  true  "Full name (min 2)"
// @Param        email            formData  string  true  "Email"
// @Param        phone            formData  string  true  "Phone (min 10)"
// @Param        dob              formData  string  true  "Date of birth YYYY-MM-DD"
// @Param        password         formData  string  true  "Password"
// @Param        confirmPassword  formData  string  true  "Password again"
// @Param        terms            formData  bool    true  "Terms accepted"
// @Param        image            formData  file    true  "Profile picture (jpeg, png, webp)"
// @Success      201  {object}  SessionResponse
// @Failure      400  {object}  map[string]interface{}  "error and per-field messages"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/auth/register [post]
func (h *Handlers) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		in := &registration.Input{Form: registration.Form{
			FullName:        strings.TrimSpace(c.PostForm("fullName")),
			Email:           strings.TrimSpace(c.PostForm("email")),
			Phone:           strings.TrimSpace(c.PostForm("phone")),
			DOB:             strings.TrimSpace(c.PostForm("dob")),
			Password:        c.PostForm("password"),
			ConfirmPassword: c.PostForm("confirmPassword"),
			Terms:           checkbox(c.PostForm("terms")),
		}}

		avatar, err := h.readAvatar(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		in.Avatar = avatar

		profile, err := h.registrar.Register(c.Request.Context(), in)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}

		principal, err := h.resolver.Resolve(c.Request.Context(), profile.UID, profile.Email)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}
		if principal.Profile == nil || principal.Synthesized {
			principal.Profile = profile
			principal.Synthesized = false
		}
		resp, err := h.session(principal)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func (h *Handlers) readAvatar(c *gin.Context) (*registration.Avatar, error) {
	for _, field := range avatarFields {
		fh, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, err
		}

		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()

		// One byte past the limit is enough for the validator to see the file is too big.
		data, err := io.ReadAll(io.LimitReader(f, h.maxAvatarBytes+1))
		if err != nil {
			return nil, err
		}
		return &registration.Avatar{Filename: fh.Filename, Data: data}, nil
	}
	return nil, nil
}

func checkbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

// @Summary      Log in
// @Description  Exchanges email and password for a session token. Failures never say which part was wrong.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  SessionResponse
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password."
// @Failure      403  {object}  map[string]interface{}  "Account banned"
// @Router       /api/v1/auth/login [post]
func (h *Handlers) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperrors.InvalidCredentialsMessage})
			return
		}

		ctx := c.Request.Context()
		ident, err := h.identities.Authenticate(ctx, strings.TrimSpace(req.Email), req.Password)
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			telemetry.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": apperrors.InvalidCredentialsMessage})
			return
		}
		if err != nil {
			httputil.RespondError(c, err)
			return
		}

		principal, err := h.resolver.Resolve(ctx, ident.ID, ident.Email)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}
		if principal.Profile != nil && principal.Profile.Status == models.StatusBanned && !principal.IsAdmin {
			telemetry.LoginAttemptsTotal.WithLabelValues("banned").Inc()
			slog.Info("banned user attempted login", "uid", ident.ID)
			c.JSON(http.StatusForbidden, gin.H{"error": "Account banned"})
			return
		}

		resp, err := h.session(principal)
		if err != nil {
			httputil.RespondError(c, err)
			return
		}
		telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handlers) session(p *auth.Principal) (*SessionResponse, error) {
	token, err := auth.GenerateJWT(p.UID, p.Email, h.sessionTTL)
	if err != nil {
		return nil, err
	}
	ttl := h.sessionTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &SessionResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(ttl).Truncate(time.Second),
		User:      p,
	}, nil
}

// @Summary      Current session
// @Description  Returns the resolved principal: uid, email, isAdmin and profile (null if the profile is missing).
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  auth.Principal
// @Failure      401  {object}  map[string]interface{}  "Authentication required"
// @Router       /api/v1/auth/me [get]
func (h *Handlers) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.JSON(http.StatusOK, principal)
	}
}
