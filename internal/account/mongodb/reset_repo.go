// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/holomush/accounts/internal/account"
)

// resetDoc is the stored shape of an account.PasswordReset.
type resetDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	TokenHash string    `bson:"token_hash"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

func toResetDoc(r *account.PasswordReset) resetDoc {
	return resetDoc{
		ID:        r.ID.String(),
		UserID:    r.UserID.String(),
		TokenHash: r.TokenHash,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
}

func (d resetDoc) toReset() (*account.PasswordReset, error) {
	id, err := ulid.Parse(d.ID)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", d.ID).Wrap(err)
	}
	userID, err := ulid.Parse(d.UserID)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").With("user_id", d.UserID).Wrap(err)
	}
	return &account.PasswordReset{
		ID:        id,
		UserID:    userID,
		TokenHash: d.TokenHash,
		ExpiresAt: d.ExpiresAt.UTC(),
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

// PasswordResetRepository implements account.PasswordResetRepository using MongoDB.
type PasswordResetRepository struct {
	coll *mongo.Collection
}

// NewPasswordResetRepository creates a new PasswordResetRepository over coll.
func NewPasswordResetRepository(coll *mongo.Collection) *PasswordResetRepository {
	return &PasswordResetRepository{coll: coll}
}

// Create stores a new password reset.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *account.PasswordReset) error {
	if _, err := r.coll.InsertOne(ctx, toResetDoc(reset)); err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset by its token hash.
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*account.PasswordReset, error) {
	return decodeReset(r.coll.FindOne(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}))
}

// Consume removes and returns the reset with the token hash.
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string) (*account.PasswordReset, error) {
	return decodeReset(r.coll.FindOneAndDelete(ctx, bson.D{{Key: "token_hash", Value: tokenHash}}))
}

// Delete removes a password reset.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset").
			With("id", id.String()).
			Wrap(err)
	}
	if res.DeletedCount == 0 {
		return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all resets for a user.
func (r *PasswordResetRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	if _, err := r.coll.DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID.String()}}); err != nil {
		return oops.Code("RESET_DELETE_BY_USER_FAILED").
			With("operation", "delete password_resets by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes resets that expired at or before now.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}}})
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password_resets").
			Wrap(err)
	}
	return res.DeletedCount, nil
}

func decodeReset(res *mongo.SingleResult) (*account.PasswordReset, error) {
	var doc resetDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, oops.Code("RESET_NOT_FOUND").Wrap(account.ErrNotFound)
		}
		return nil, oops.Code("RESET_FIND_FAILED").With("operation", "decode password_reset").Wrap(err)
	}
	return doc.toReset()
}

// Compile-time interface check.
var _ account.PasswordResetRepository = (*PasswordResetRepository)(nil)
