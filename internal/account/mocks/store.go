// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks of the account interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/identity/internal/account"
)

// MockStore is a mock of account.Store.
type MockStore struct {
	mock.Mock
}

var _ account.Store = (*MockStore)(nil)

// NewMockStore creates a MockStore whose expectations are asserted on cleanup.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockStore {
	m := &MockStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func accountResult(args mock.Arguments) (*account.Account, error) {
	var acct *account.Account
	if v := args.Get(0); v != nil {
		acct = v.(*account.Account) //nolint:errcheck // test double
	}
	return acct, args.Error(1)
}

// Create implements account.Store.
func (m *MockStore) Create(ctx context.Context, acct *account.Account) error {
	return m.Called(ctx, acct).Error(0)
}

// GetByID implements account.Store.
func (m *MockStore) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return accountResult(m.Called(ctx, id))
}

// GetByUsername implements account.Store.
func (m *MockStore) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	return accountResult(m.Called(ctx, username))
}

// GetByTokenHash implements account.Store.
func (m *MockStore) GetByTokenHash(ctx context.Context, tokenHash string) (*account.Account, error) {
	return accountResult(m.Called(ctx, tokenHash))
}

// List implements account.Store.
func (m *MockStore) List(ctx context.Context) ([]*account.Account, error) {
	args := m.Called(ctx)
	var accts []*account.Account
	if v := args.Get(0); v != nil {
		accts = v.([]*account.Account) //nolint:errcheck // test double
	}
	return accts, args.Error(1)
}

// SetToken implements account.Store.
func (m *MockStore) SetToken(ctx context.Context, id ulid.ULID, tokenHash string, status account.Status) (*account.Account, error) {
	return accountResult(m.Called(ctx, id, tokenHash, status))
}

// ClearToken implements account.Store.
func (m *MockStore) ClearToken(ctx context.Context, tokenHash string) (*account.Account, error) {
	return accountResult(m.Called(ctx, tokenHash))
}

// SetStatus implements account.Store.
func (m *MockStore) SetStatus(ctx context.Context, id ulid.ULID, status account.Status) (*account.Account, error) {
	return accountResult(m.Called(ctx, id, status))
}

// UpdateProfile implements account.Store.
func (m *MockStore) UpdateProfile(ctx context.Context, id ulid.ULID, update account.ProfileUpdate) (*account.Account, error) {
	return accountResult(m.Called(ctx, id, update))
}

// UpdatePasswordHash implements account.Store.
func (m *MockStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// Ping implements account.Store.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
