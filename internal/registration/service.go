// Package registration turns a validated sign-up form into an identity, a stored profile
// picture, a profile record and one increment of the shared user counter.
//
// The five writes go to different stores and are not transactional. They run as a Saga:
// by default a failure leaves the earlier writes in place (an orphaned identity or
// picture); with registration.compensate enabled the earlier writes are undone.
package registration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xplorixa/portal/internal/apperrors"
	"github.com/xplorixa/portal/internal/db/models"
	"github.com/xplorixa/portal/internal/identity"
	"github.com/xplorixa/portal/internal/storage"
)

// Step names, also used as metric and log labels.
const (
	StepCreateIdentity   = "create_identity"
	StepUploadAvatar     = "upload_avatar"
	StepUpdateIdentity   = "update_identity"
	StepCreateProfile    = "create_profile"
	StepIncrementCounter = "increment_counter"
)

// ProfileStore persists profiles.
type ProfileStore interface {
	Create(ctx context.Context, p *models.UserProfile) error
	Delete(ctx context.Context, uid string) (bool, error)
}

// Counter is the shared registration counter.
type Counter interface {
	Increment(ctx context.Context) (int64, error)
}

// Observer is told the outcome of every registration attempt. failedStep is empty on
// success.
type Observer func(failedStep string, d time.Duration)

// Service runs registrations.
type Service struct {
	identities identity.Provider
	avatars    storage.Storage
	profiles   ProfileStore
	counter    Counter
	validator  *Validator
	compensate bool
	observe    Observer
	logger     *slog.Logger
	now        func() time.Time
}

// Options configure a Service.
type Options struct {
	MaxAvatarBytes      int64
	AllowedContentTypes []string
	Compensate          bool
	Observer            Observer
	Logger              *slog.Logger
}

// NewService creates a Service.
func NewService(identities identity.Provider, avatars storage.Storage, profiles ProfileStore, counter Counter, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identities: identities,
		avatars:    avatars,
		profiles:   profiles,
		counter:    counter,
		validator:  NewValidator(opts.MaxAvatarBytes, opts.AllowedContentTypes),
		compensate: opts.Compensate,
		observe:    opts.Observer,
		logger:     logger,
		now:        time.Now,
	}
}

// Register validates in and runs the registration steps. The returned error is a
// *apperrors.ValidationError, or a *StepError wrapping the apperrors kind of the
// failed step.
func (s *Service) Register(ctx context.Context, in *Input) (*models.UserProfile, error) {
	contentType, err := s.validator.Validate(in)
	if err != nil {
		return nil, err
	}
	dob, _ := time.Parse(models.DateLayout, in.DOB)
	email := strings.TrimSpace(in.Email)

	var (
		ident    *models.Identity
		photoURL string
		profile  *models.UserProfile
		key      string
	)

	steps := []Step{
		{
			Name: StepCreateIdentity,
			Do: func(ctx context.Context) error {
				var err error
				ident, err = s.identities.Create(ctx, email, in.Password)
				return err
			},
			Undo: func(ctx context.Context) error {
				return s.identities.Delete(ctx, ident.ID)
			},
		},
		{
			Name: StepUploadAvatar,
			Do: func(ctx context.Context) error {
				key = storage.AvatarKey(ident.ID)
				data := in.Avatar.Data
				if _, err := s.avatars.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
					return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
				}
				url, err := s.avatars.URL(ctx, key)
				if err != nil {
					return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
				}
				photoURL = url
				return nil
			},
			Undo: func(ctx context.Context) error {
				return s.avatars.Delete(ctx, key)
			},
		},
		{
			Name: StepUpdateIdentity,
			Do: func(ctx context.Context) error {
				return s.identities.UpdateProfile(ctx, ident.ID, in.FullName, photoURL)
			},
		},
		{
			Name: StepCreateProfile,
			Do: func(ctx context.Context) error {
				profile = &models.UserProfile{
					UID:         ident.ID,
					Email:       ident.Email,
					FullName:    in.FullName,
					PhoneNumber: in.Phone,
					DOB:         dob,
					PhotoURL:    photoURL,
					Role:        models.RoleUser,
					Status:      models.StatusActive,
					CreatedAt:   s.now().UTC(),
				}
				if err := s.profiles.Create(ctx, profile); err != nil {
					return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
				}
				return nil
			},
			Undo: func(ctx context.Context) error {
				_, err := s.profiles.Delete(ctx, profile.UID)
				return err
			},
		},
		{
			Name: StepIncrementCounter,
			Do: func(ctx context.Context) error {
				if _, err := s.counter.Increment(ctx); err != nil {
					return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
				}
				return nil
			},
		},
	}

	start := s.now()
	err = NewSaga(s.compensate, s.logger, steps...).Run(ctx)
	s.report(err, s.now().Sub(start))
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "uid", profile.UID)
	return profile, nil
}

func (s *Service) report(err error, d time.Duration) {
	if s.observe == nil {
		return
	}
	failed := ""
	var se *StepError
	if errors.As(err, &se) {
		failed = se.Step
	}
	s.observe(failed, d)
}
