// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity is the tuple of profile fields used for conjunctive matching.
// All four fields must match exactly for a record to be selected.
type Identity struct {
	Username    string
	FirstName   string
	DateOfBirth string
	Email       string
}

// User is a registered account.
type User struct {
	// ID is the internal record identifier.
	ID ulid.ULID
	// UserID is a secondary public identifier, unique per record.
	UserID       uuid.UUID
	Username     string
	FirstName    string
	DateOfBirth  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the identity tuple of the user.
func (u *User) Identity() Identity {
	return Identity{
		Username:    u.Username,
		FirstName:   u.FirstName,
		DateOfBirth: u.DateOfBirth,
		Email:       u.Email,
	}
}

// NewUser creates a User with freshly generated identifiers.
func NewUser(id Identity, passwordHash string, now time.Time) (*User, error) {
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID").Errorf("password hash cannot be empty")
	}
	userID, err := uuid.NewRandom()
	if err != nil {
		return nil, oops.Code("USER_ID_GENERATE_FAILED").Wrap(err)
	}
	return &User{
		ID:           ulid.Make(),
		UserID:       userID,
		Username:     id.Username,
		FirstName:    id.FirstName,
		DateOfBirth:  id.DateOfBirth,
		Email:        id.Email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicate when a user with the
	// same identity tuple exists.
	Create(ctx context.Context, user *User) error

	// FindByIdentity retrieves the user whose four identity fields all match.
	FindByIdentity(ctx context.Context, identity Identity) (*User, error)

	// UpdatePassword replaces the password hash of a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
