// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/identity/internal/account"
)

// MockPasswordHasher is a mock of account.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ account.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a MockPasswordHasher whose expectations are
// asserted on cleanup.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements account.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements account.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade implements account.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockAuthorizer is a mock of account.Authorizer.
type MockAuthorizer struct {
	mock.Mock
}

var _ account.Authorizer = (*MockAuthorizer)(nil)

// NewMockAuthorizer creates a MockAuthorizer whose expectations are
// asserted on cleanup.
func NewMockAuthorizer(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAuthorizer {
	m := &MockAuthorizer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// AuthorizeForAccount implements account.Authorizer.
func (m *MockAuthorizer) AuthorizeForAccount(ctx context.Context, token string, targetID ulid.ULID) error {
	return m.Called(ctx, token, targetID).Error(0)
}
