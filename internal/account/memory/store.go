// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process account repositories for tests and
// single-instance development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
)

// Store holds users and password resets in process memory.
// It implements both account.UserRepository and, via Resets,
// account.PasswordResetRepository.
type Store struct {
	mu     sync.RWMutex
	users  map[ulid.ULID]*account.User
	byID   map[account.Identity]ulid.ULID
	resets map[string]*account.PasswordReset // keyed by token hash
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:  make(map[ulid.ULID]*account.User),
		byID:   make(map[account.Identity]ulid.ULID),
		resets: make(map[string]*account.PasswordReset),
	}
}

// Resets returns the password reset view of the store.
func (s *Store) Resets() *ResetStore {
	return &ResetStore{s: s}
}

func cloneUser(u *account.User) *account.User {
	c := *u
	return &c
}

func cloneReset(r *account.PasswordReset) *account.PasswordReset {
	c := *r
	return &c
}

// Create stores a new user.
func (s *Store) Create(_ context.Context, user *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity := user.Identity()
	if _, exists := s.byID[identity]; exists {
		return oops.Code("USER_DUPLICATE").With("username", user.Username).Wrap(account.ErrDuplicate)
	}
	if _, exists := s.users[user.ID]; exists {
		return oops.Code("USER_DUPLICATE").With("user_id", user.ID.String()).Wrap(account.ErrDuplicate)
	}
	s.users[user.ID] = cloneUser(user)
	s.byID[identity] = user.ID
	return nil
}

// FindByIdentity retrieves the user whose identity tuple matches exactly.
func (s *Store) FindByIdentity(_ context.Context, identity account.Identity) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byID[identity]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	return cloneUser(s.users[id]), nil
}

// UpdatePassword replaces the password hash of a user.
func (s *Store) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(account.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetStore is the account.PasswordResetRepository view of a Store.
type ResetStore struct {
	s *Store
}

// Create stores a new password reset.
func (r *ResetStore) Create(_ context.Context, reset *account.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[reset.UserID]; !ok {
		return oops.Code("RESET_CREATE_FAILED").
			With("user_id", reset.UserID.String()).
			Errorf("user does not exist")
	}
	if _, ok := r.s.resets[reset.TokenHash]; ok {
		return oops.Code("RESET_CREATE_FAILED").Errorf("token hash already exists")
	}
	r.s.resets[reset.TokenHash] = cloneReset(reset)
	return nil
}

// GetByTokenHash retrieves a reset by its token hash.
func (r *ResetStore) GetByTokenHash(_ context.Context, tokenHash string) (*account.PasswordReset, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	reset, ok := r.s.resets[tokenHash]
	if !ok {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	return cloneReset(reset), nil
}

// Consume removes and returns the reset with the token hash.
func (r *ResetStore) Consume(_ context.Context, tokenHash string) (*account.PasswordReset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reset, ok := r.s.resets[tokenHash]
	if !ok {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	delete(r.s.resets, tokenHash)
	return reset, nil
}

// Delete removes a password reset.
func (r *ResetStore) Delete(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for hash, reset := range r.s.resets {
		if reset.ID == id {
			delete(r.s.resets, hash)
			return nil
		}
	}
	return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(account.ErrNotFound)
}

// DeleteByUser removes all resets for a user.
func (r *ResetStore) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for hash, reset := range r.s.resets {
		if reset.UserID == userID {
			delete(r.s.resets, hash)
		}
	}
	return nil
}

// DeleteExpired removes resets that expired at or before now.
func (r *ResetStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for hash, reset := range r.s.resets {
		if reset.IsExpired(now) {
			delete(r.s.resets, hash)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

var (
	_ account.UserRepository          = (*Store)(nil)
	_ account.PasswordResetRepository = (*ResetStore)(nil)
)
