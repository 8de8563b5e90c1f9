// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Store manages account persistence and the token index.
//
// Implementations must make every method atomic with respect to concurrent
// callers and must reflect any completed write in subsequent reads.
// Lookups that miss return an error wrapping ErrNotFound; username
// collisions on Create or UpdateProfile return an error wrapping ErrConflict.
// Returned accounts are copies owned by the caller.
type Store interface {
	// Create stores a new account.
	Create(ctx context.Context, acct *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an account by exact (case-sensitive) username.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByTokenHash retrieves the account currently holding the token.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Account, error)

	// List returns all accounts ordered by creation.
	List(ctx context.Context) ([]*Account, error)

	// SetToken replaces the account's token hash and status in one write.
	SetToken(ctx context.Context, id ulid.ULID, tokenHash string, status Status) (*Account, error)

	// ClearToken removes the token from whichever account holds it and sets
	// that account OFFLINE in one write.
	ClearToken(ctx context.Context, tokenHash string) (*Account, error)

	// SetStatus changes the presence status of an account.
	SetStatus(ctx context.Context, id ulid.ULID, status Status) (*Account, error)

	// UpdateProfile applies the non-nil fields of update.
	UpdateProfile(ctx context.Context, id ulid.ULID, update ProfileUpdate) (*Account, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
