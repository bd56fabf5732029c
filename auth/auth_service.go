package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/readit-web/internal/config"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/jrsteele09/readit-web/internal/utils"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/jrsteele09/readit-web/users"
	"github.com/rs/zerolog"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Refresher renews the access token and can drop its cooldown after a logout
type Refresher interface {
	Refresh(ctx context.Context) (time.Time, error)
	Forget()
}

// Service performs the session actions of one execution context and keeps its
// session store in step with the backend.
type Service struct {
	store     *sessions.Store
	users     *users.API
	refresher Refresher
	config    config.SessionConfig

	// hasCredential reports whether a backend credential could exist at all
	hasCredential func() bool
}

type ServiceOption func(*Service)

// WithCredentialCheck skips the identity check when check reports no credential
func WithCredentialCheck(check func() bool) ServiceOption {
	return func(s *Service) {
		s.hasCredential = check
	}
}

func NewService(store *sessions.Store, api *users.API, refresher Refresher, cfg config.SessionConfig, options ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		users:         api,
		refresher:     refresher,
		config:        cfg,
		hasCredential: func() bool { return true },
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Store returns the session store the service writes to
func (s *Service) Store() *sessions.Store {
	return s.store
}

// ConfirmIdentity refreshes the access token when its cached expiry is missing or
// within the safety margin, then runs the identity check. Success populates the store;
// any failure clears it. The whole exchange is bounded by the identity timeout.
func (s *Service) ConfirmIdentity(ctx context.Context) error {
	if !s.hasCredential() {
		s.store.Clear()
		return apperrors.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.GetIdentityTimeout())
	defer cancel()

	if s.store.Get().NeedsRefresh(NowTimeFunc(), s.config.GetRefreshSafetyMargin()) {
		if _, err := s.refresher.Refresh(ctx); err != nil {
			s.store.Clear()
			return fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
		}
	}

	id, err := s.users.Me(ctx)
	if err != nil {
		s.store.Clear()
		return fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}

	s.store.Set(sessions.Patch{
		UserID:          &id.UserID,
		Username:        &id.Username,
		IsAuthenticated: utils.Ptr(true),
		IsEmailVerified: &id.IsEmailVerified,
		AuthProvider:    utils.Ptr(providerFor(id.AuthProvider)),
	})
	zerolog.Ctx(ctx).Debug().Str("user_id", id.UserID).Msg("identity confirmed")
	return nil
}

func providerFor(raw string) sessions.AuthProvider {
	if raw == string(sessions.AuthProviderGoogle) {
		return sessions.AuthProviderGoogle
	}
	return sessions.AuthProviderPassword
}

func (s *Service) signedIn(resp *users.LoginResponse, provider sessions.AuthProvider) {
	patch := sessions.Patch{
		UserID:          &resp.UserID,
		Username:        &resp.Username,
		IsAuthenticated: utils.Ptr(true),
		IsEmailVerified: &resp.IsEmailVerified,
		AuthProvider:    &provider,
	}
	if !resp.AccessTokenExpiresAt.IsZero() {
		patch.AccessTokenExpiresAt = &resp.AccessTokenExpiresAt.Time
	}
	s.store.Set(patch)
}

// Login validates the form and signs in. Invalid fields are returned as FieldErrors
// without contacting the backend.
func (s *Service) Login(ctx context.Context, form LoginForm) (*users.LoginResponse, FieldErrors, error) {
	if errs := ValidateLogin(form); len(errs) > 0 {
		return nil, errs, nil
	}

	resp, err := s.users.Login(ctx, users.Credentials{EmailAddress: form.EmailAddress, Password: form.Password})
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, "[auth Login] login")
	}
	s.signedIn(resp, sessions.AuthProviderPassword)
	return resp, nil, nil
}

// GoogleLogin signs in with an authorization code from Google
func (s *Service) GoogleLogin(ctx context.Context, code string) (*users.LoginResponse, error) {
	resp, err := s.users.GoogleLogin(ctx, code)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[auth GoogleLogin] google login")
	}
	s.signedIn(resp, sessions.AuthProviderGoogle)
	return resp, nil
}

// Signup validates the form and registers the account. The new account is unverified
// and not signed in.
func (s *Service) Signup(ctx context.Context, form SignupForm) (*users.UserRef, FieldErrors, error) {
	if errs := ValidateSignup(form); len(errs) > 0 {
		return nil, errs, nil
	}

	ref, err := s.users.Signup(ctx, users.Signup{
		Username:     form.Username,
		EmailAddress: form.EmailAddress,
		Password:     form.Password,
	})
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, "[auth Signup] signup")
	}
	return ref, nil, nil
}

// Logout signs out at the backend. The store is cleared even if that call fails.
func (s *Service) Logout(ctx context.Context) error {
	defer func() {
		s.store.Clear()
		s.refresher.Forget()
	}()
	if _, err := s.users.Logout(ctx); err != nil {
		return apperrors.Wrapf(err, "[auth Logout] logout")
	}
	return nil
}

func (s *Service) passwordAccount() error {
	sess := s.store.Get()
	if !sess.IsAuthenticated {
		return ErrNotSignedIn
	}
	if sess.AuthProvider == sessions.AuthProviderGoogle {
		return ErrNoPassword
	}
	return nil
}

// RequestChangePasswordCode emails a change-password code and unlocks the code page once
func (s *Service) RequestChangePasswordCode(ctx context.Context) error {
	if err := s.passwordAccount(); err != nil {
		return err
	}
	if _, err := s.users.RequestChangePasswordCode(ctx); err != nil {
		return apperrors.Wrapf(err, "[auth RequestChangePasswordCode] request code")
	}
	s.store.Grant(sessions.FlagChangePasswordCode)
	return nil
}

func (s *Service) ResendChangePasswordCode(ctx context.Context) error {
	if err := s.passwordAccount(); err != nil {
		return err
	}
	_, err := s.users.ResendChangePasswordCode(ctx)
	return err
}

// VerifyChangePasswordCode checks the emailed code and unlocks the new-password page once
func (s *Service) VerifyChangePasswordCode(ctx context.Context, code string) error {
	if err := s.passwordAccount(); err != nil {
		return err
	}
	if _, err := s.users.VerifyChangePasswordCode(ctx, code); err != nil {
		return apperrors.Wrapf(err, "[auth VerifyChangePasswordCode] verify code")
	}
	s.store.Grant(sessions.FlagChangePasswordNew)
	return nil
}

// ChangePassword sets a new password. A new password that breaks the password rules is
// reported as FieldErrors on newPassword.
func (s *Service) ChangePassword(ctx context.Context, code, currentPassword, newPassword string) (FieldErrors, error) {
	if err := s.passwordAccount(); err != nil {
		return nil, err
	}
	if errs := newPasswordErrors(ValidatePassword(newPassword, s.store.Get().Username, "")); len(errs) > 0 {
		return errs, nil
	}
	if _, err := s.users.ChangePassword(ctx, code, currentPassword, newPassword); err != nil {
		return nil, apperrors.Wrapf(err, "[auth ChangePassword] change password")
	}
	return nil, nil
}

func (s *Service) SendVerificationEmail(ctx context.Context, userID string) error {
	_, err := s.users.SendVerificationEmail(ctx, userID)
	return err
}

func (s *Service) ResendVerificationCode(ctx context.Context, userID string) error {
	_, err := s.users.ResendVerificationCode(ctx, userID)
	return err
}

// VerifyEmail confirms the emailed code and marks the signed-in session verified
func (s *Service) VerifyEmail(ctx context.Context, userID, code string) error {
	if _, err := s.users.VerifyEmail(ctx, userID, code); err != nil {
		return apperrors.Wrapf(err, "[auth VerifyEmail] verify email")
	}
	if s.store.Get().UserID == userID {
		s.store.Set(sessions.Patch{IsEmailVerified: utils.Ptr(true)})
	}
	return nil
}

// RequestPasswordReset returns the id of the account the reset code was sent to
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddress string) (string, error) {
	ref, err := s.users.RequestPasswordReset(ctx, emailAddress)
	if err != nil {
		return "", err
	}
	return ref.UserID, nil
}

func (s *Service) VerifyResetCode(ctx context.Context, userID, code string) error {
	_, err := s.users.VerifyResetCode(ctx, userID, code)
	return err
}

func (s *Service) ResendResetCode(ctx context.Context, userID string) error {
	_, err := s.users.ResendResetCode(ctx, userID)
	return err
}

// ResetPassword sets a new password after a verified reset code
func (s *Service) ResetPassword(ctx context.Context, userID, code, newPassword string) (FieldErrors, error) {
	if errs := newPasswordErrors(ValidatePassword(newPassword, "", "")); len(errs) > 0 {
		return errs, nil
	}
	_, err := s.users.ResetPassword(ctx, userID, code, newPassword)
	return nil, err
}

func newPasswordErrors(report PasswordReport) FieldErrors {
	var errs FieldErrors
	for _, msg := range report.Errors {
		errs = append(errs, FieldError{Name: "newPassword", Message: msg})
	}
	return errs
}
