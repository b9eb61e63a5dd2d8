// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/holomush/accounts/internal/account")

// dummyPasswordHash is verified against when no user matches so that the
// unknown-identity path costs the same as a wrong password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ResetPath is the route that accepts reset tokens.
const ResetPath = "/reset-password"

// ServiceConfig holds tunables for the Service.
type ServiceConfig struct {
	// BaseURL prefixes reset links, e.g. "http://localhost:3000".
	BaseURL string
	// ResetTTL bounds how long a reset link stays valid. Zero means DefaultResetTokenTTL.
	ResetTTL time.Duration
	// Logger receives best-effort cleanup failures. Nil means slog.Default().
	Logger *slog.Logger
	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// RegisterInput is the data submitted to Register.
type RegisterInput struct {
	Identity
	Password string
}

// Service executes account operations against injected ports.
type Service struct {
	users    UserRepository
	resets   PasswordResetRepository
	hasher   PasswordHasher
	notifier Notifier
	baseURL  string
	resetTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. All ports are required.
func NewService(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	notifier Notifier,
	cfg ServiceConfig,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("user repository is required")
	}
	if resets == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("password reset repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("notifier is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, oops.Code("SERVICE_INVALID").With("base_url", cfg.BaseURL).Wrap(err)
	}

	s := &Service{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		notifier: notifier,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		resetTTL: cfg.ResetTTL,
		logger:   cfg.Logger,
		now:      cfg.Clock,
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTokenTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Register creates an account unless one with the same identity tuple exists.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "account.Register")
	defer func() { endSpan(span, err) }()

	_, err = s.users.FindByIdentity(ctx, in.Identity)
	switch {
	case err == nil:
		return nil, duplicateError(in.Identity)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("REGISTER_FAILED").With("operation", "find by identity").Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err = NewUser(in.Identity, hash, s.now().UTC())
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "new user").Wrap(err)
	}

	if err = s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, duplicateError(in.Identity)
		}
		return nil, oops.Code("REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}
	return user, nil
}

// Authenticate checks the password of the user matching identity.
// Unknown identities and wrong passwords fail with the same error.
func (s *Service) Authenticate(ctx context.Context, identity Identity, password string) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "account.Authenticate")
	defer func() { endSpan(span, err) }()

	user, lookupErr := s.users.FindByIdentity(ctx, identity)
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_FAILED").With("operation", "find by identity").Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && lookupErr == nil {
		return nil, oops.Code("AUTH_FAILED").With("operation", "verify password").Wrap(verifyErr)
	}
	if lookupErr != nil || !valid {
		return nil, oops.Code(CodeInvalidCredentials).Errorf("incorrect username, first name, or password")
	}
	return user, nil
}

// RequestReset issues a reset token for the user matching identity and sends
// the reset link through the Notifier. Earlier tokens for the user are revoked.
func (s *Service) RequestReset(ctx context.Context, identity Identity) (err error) {
	ctx, span := tracer.Start(ctx, "account.RequestReset")
	defer func() { endSpan(span, err) }()

	user, err := s.users.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).Errorf("no user with this data")
		}
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "find by identity").Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate token").Wrap(err)
	}

	now := s.now().UTC()
	reset, err := NewPasswordReset(user.ID, hash, now, now.Add(s.resetTTL))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "new password reset").Wrap(err)
	}

	if err = s.resets.DeleteByUser(ctx, user.ID); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "revoke previous resets").Wrap(err)
	}
	if err = s.resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "create reset").Wrap(err)
	}

	msg := ResetMessage{
		To:        user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		Link:      s.ResetLink(token),
		ExpiresAt: reset.ExpiresAt,
	}
	if sendErr := s.notifier.SendPasswordReset(ctx, msg); sendErr != nil {
		if delErr := s.resets.Delete(ctx, reset.ID); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to revoke undelivered reset",
				"reset_id", reset.ID.String(),
				"error", delErr)
		}
		s.logger.ErrorContext(ctx, "password reset notification failed",
			"user_id", user.ID.String(),
			"error", sendErr)
		return oops.Code(CodeNotifyFailed).
			With("user_id", user.ID.String()).
			Errorf("error sending the password-reset email")
	}
	return nil
}

// ValidateResetToken reports whether token is a live reset token without
// consuming it.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (reset *PasswordReset, err error) {
	ctx, span := tracer.Start(ctx, "account.ValidateResetToken")
	defer func() { endSpan(span, err) }()

	if !wellFormedToken(token) {
		return nil, invalidTokenError()
	}

	reset, err = s.resets.GetByTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidTokenError()
		}
		return nil, oops.Code("RESET_VALIDATE_FAILED").With("operation", "get by token hash").Wrap(err)
	}
	if reset.IsExpired(s.now()) {
		return nil, expiredTokenError()
	}
	return reset, nil
}

// ApplyReset sets a new password for the owner of token. The token is
// consumed whether or not it has expired.
func (s *Service) ApplyReset(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "account.ApplyReset")
	defer func() { endSpan(span, err) }()

	if !wellFormedToken(token) {
		return invalidTokenError()
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_APPLY_FAILED").With("operation", "hash password").Wrap(err)
	}

	reset, err := s.resets.Consume(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidTokenError()
		}
		return oops.Code("RESET_APPLY_FAILED").With("operation", "consume reset").Wrap(err)
	}
	if reset.IsExpired(s.now()) {
		return expiredTokenError()
	}

	if err = s.users.UpdatePassword(ctx, reset.UserID, hashed); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetUserNotFound).
				With("user_id", reset.UserID.String()).
				Errorf("user not found")
		}
		return oops.Code("RESET_APPLY_FAILED").
			With("operation", "update password").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}

	if delErr := s.resets.DeleteByUser(ctx, reset.UserID); delErr != nil {
		s.logger.WarnContext(ctx, "failed to revoke remaining resets",
			"user_id", reset.UserID.String(),
			"error", delErr)
	}
	return nil
}

// PurgeExpiredResets deletes expired reset tokens and returns how many were removed.
func (s *Service) PurgeExpiredResets(ctx context.Context) (n int64, err error) {
	ctx, span := tracer.Start(ctx, "account.PurgeExpiredResets")
	defer func() { endSpan(span, err) }()

	n, err = s.resets.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

// ResetLink builds the link delivered to the user for token.
func (s *Service) ResetLink(token string) string {
	return s.baseURL + ResetPath + "?id=" + url.QueryEscape(token)
}

func duplicateError(id Identity) error {
	return oops.Code(CodeDuplicate).
		With("username", id.Username).
		Errorf("username, email and first name are already registered")
}

func invalidTokenError() error {
	return oops.Code(CodeTokenInvalid).Errorf("user not found")
}

func expiredTokenError() error {
	return oops.Code(CodeTokenExpired).Errorf("the password reset link has expired")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
