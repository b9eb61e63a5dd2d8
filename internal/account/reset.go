// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes        = 32 // 64 hex chars
	DefaultResetTokenTTL   = time.Hour
	resetTokenHexLen       = ResetTokenBytes * 2
	resetTokenHashHexBytes = sha256.Size * 2
)

// PasswordReset is an outstanding password reset capability.
type PasswordReset struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPasswordReset creates a PasswordReset for the given user.
func NewPasswordReset(userID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*PasswordReset, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID").Errorf("user ID cannot be zero")
	}
	if len(tokenHash) != resetTokenHashHexBytes {
		return nil, oops.Code("RESET_INVALID").Errorf("token hash must be %d hex characters", resetTokenHashHexBytes)
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("RESET_INVALID").Errorf("expiry must be after creation")
	}
	return &PasswordReset{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// IsExpired reports whether the reset has expired at now.
func (r *PasswordReset) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// GenerateResetToken creates a random token and its hash.
// The plaintext token is sent to the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the hex SHA-256 of token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// wellFormedToken reports whether token looks like one GenerateResetToken made.
func wellFormedToken(token string) bool {
	if len(token) != resetTokenHexLen {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new password reset.
	Create(ctx context.Context, reset *PasswordReset) error

	// GetByTokenHash retrieves a reset by its token hash without consuming it.
	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// Consume atomically removes and returns the reset with the token hash.
	// Two concurrent callers never both receive the same reset.
	Consume(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// Delete removes a password reset.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all resets for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes resets that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
