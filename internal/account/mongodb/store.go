// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mongodb provides MongoDB implementations of account repositories.
package mongodb

import (
	"context"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names.
const (
	UsersCollection  = "users"
	ResetsCollection = "password_resets"
)

// DefaultDatabase is the database used when none is configured.
const DefaultDatabase = "web_app_db"

// Store owns a MongoDB client and the account collections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client for uri, verifies the server is reachable and
// ensures the account indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "connect").Wrap(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // index error takes precedence
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique and TTL indexes the repositories rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "username", Value: 1},
			{Key: "email", Value: 1},
			{Key: "first_name", Value: 1},
			{Key: "date_of_birth", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("users_identity_idx"),
	})
	if err != nil {
		return oops.Code("MONGO_INDEX_FAILED").With("collection", UsersCollection).Wrap(err)
	}

	_, err = s.db.Collection(ResetsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("password_resets_token_hash_idx"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("password_resets_user_id_idx"),
		},
		{
			// The server removes expired resets in the background; the
			// service checks expiry itself so the TTL monitor lag is harmless.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("password_resets_expires_at_ttl"),
		},
	})
	if err != nil {
		return oops.Code("MONGO_INDEX_FAILED").With("collection", ResetsCollection).Wrap(err)
	}
	return nil
}

// Users returns the user repository.
func (s *Store) Users() *UserRepository {
	return NewUserRepository(s.db.Collection(UsersCollection))
}

// Resets returns the password reset repository.
func (s *Store) Resets() *PasswordResetRepository {
	return NewPasswordResetRepository(s.db.Collection(ResetsCollection))
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return oops.Code("MONGO_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return oops.Code("MONGO_DISCONNECT_FAILED").Wrap(err)
	}
	return nil
}
