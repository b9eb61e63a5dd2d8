// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accounts/internal/account"
)

// MockUserRepository is a mock of account.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks UserRepository.Create.
func (m *MockUserRepository) Create(ctx context.Context, user *account.User) error {
	return m.Called(ctx, user).Error(0)
}

// FindByIdentity mocks UserRepository.FindByIdentity.
func (m *MockUserRepository) FindByIdentity(ctx context.Context, identity account.Identity) (*account.User, error) {
	args := m.Called(ctx, identity)
	user, _ := args.Get(0).(*account.User)
	return user, args.Error(1)
}

// UpdatePassword mocks UserRepository.UpdatePassword.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

var _ account.UserRepository = (*MockUserRepository)(nil)
