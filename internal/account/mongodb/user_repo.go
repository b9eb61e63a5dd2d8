// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/holomush/accounts/internal/account"
)

// userDoc is the stored shape of an account.User.
type userDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Username     string    `bson:"username"`
	FirstName    string    `bson:"first_name"`
	DateOfBirth  string    `bson:"date_of_birth"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toUserDoc(u *account.User) userDoc {
	return userDoc{
		ID:           u.ID.String(),
		UserID:       u.UserID.String(),
		Username:     u.Username,
		FirstName:    u.FirstName,
		DateOfBirth:  u.DateOfBirth,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d userDoc) toUser() (*account.User, error) {
	id, err := ulid.Parse(d.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", d.ID).Wrap(err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_USER_ID").With("user_id", d.UserID).Wrap(err)
	}
	return &account.User{
		ID:           id,
		UserID:       userID,
		Username:     d.Username,
		FirstName:    d.FirstName,
		DateOfBirth:  d.DateOfBirth,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

func identityFilter(id account.Identity) bson.D {
	return bson.D{
		{Key: "username", Value: id.Username},
		{Key: "first_name", Value: id.FirstName},
		{Key: "date_of_birth", Value: id.DateOfBirth},
		{Key: "email", Value: id.Email},
	}
}

// UserRepository implements account.UserRepository using MongoDB.
type UserRepository struct {
	coll *mongo.Collection
}

// NewUserRepository creates a new UserRepository over coll.
func NewUserRepository(coll *mongo.Collection) *UserRepository {
	return &UserRepository{coll: coll}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *account.User) error {
	if _, err := r.coll.InsertOne(ctx, toUserDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(account.ErrDuplicate)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindByIdentity retrieves the user whose identity tuple matches exactly.
func (r *UserRepository) FindByIdentity(ctx context.Context, identity account.Identity) (*account.User, error) {
	return r.findOne(ctx, identityFilter(identity))
}

// UpdatePassword replaces the password hash of a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password").
			With("user_id", id.String()).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(account.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.D) (*account.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, oops.Code("USER_NOT_FOUND").Wrap(account.ErrNotFound)
		}
		return nil, oops.Code("USER_FIND_FAILED").With("operation", "find user").Wrap(err)
	}
	return doc.toUser()
}

// Compile-time interface check.
var _ account.UserRepository = (*UserRepository)(nil)
