// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accounts/internal/account"
)

// MockPasswordResetRepository is a mock of account.PasswordResetRepository.
type MockPasswordResetRepository struct {
	mock.Mock
}

// NewMockPasswordResetRepository creates a mock that asserts its expectations on cleanup.
func NewMockPasswordResetRepository(t testingT) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	register(t, &m.Mock)
	return m
}

// Create mocks PasswordResetRepository.Create.
func (m *MockPasswordResetRepository) Create(ctx context.Context, reset *account.PasswordReset) error {
	return m.Called(ctx, reset).Error(0)
}

// GetByTokenHash mocks PasswordResetRepository.GetByTokenHash.
func (m *MockPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*account.PasswordReset, error) {
	args := m.Called(ctx, tokenHash)
	reset, _ := args.Get(0).(*account.PasswordReset)
	return reset, args.Error(1)
}

// Consume mocks PasswordResetRepository.Consume.
func (m *MockPasswordResetRepository) Consume(ctx context.Context, tokenHash string) (*account.PasswordReset, error) {
	args := m.Called(ctx, tokenHash)
	reset, _ := args.Get(0).(*account.PasswordReset)
	return reset, args.Error(1)
}

// Delete mocks PasswordResetRepository.Delete.
func (m *MockPasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// DeleteByUser mocks PasswordResetRepository.DeleteByUser.
func (m *MockPasswordResetRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

// DeleteExpired mocks PasswordResetRepository.DeleteExpired.
func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

var _ account.PasswordResetRepository = (*MockPasswordResetRepository)(nil)
