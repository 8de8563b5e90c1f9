// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest holds behaviour tests shared by account.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/pkg/errutil"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) account.Store

// NewAccount builds a valid account with a fresh token for username.
func NewAccount(t *testing.T, username string) (*account.Account, string) {
	t.Helper()
	token, tokenHash, err := account.GenerateToken()
	require.NoError(t, err)
	acct, err := account.NewAccount(username, "$argon2id$v=19$m=8,t=1,p=1$c2FsdA$aGFzaA", tokenHash, time.Now())
	require.NoError(t, err)
	return acct, token
}

// Run exercises the account.Store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acct, _ := NewAccount(t, "alice")
		require.NoError(t, s.Create(ctx, acct))

		byID, err := s.GetByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
		assert.Equal(t, account.StatusOffline, byID.Status)
		assert.Equal(t, acct.TokenHash, byID.TokenHash)
		assert.True(t, acct.CreationDate.Equal(byID.CreationDate))

		byName, err := s.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, byName.ID)

		byToken, err := s.GetByTokenHash(ctx, acct.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, acct.ID, byToken.ID)
	})

	t.Run("usernames are case sensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		lower, _ := NewAccount(t, "bob")
		upper, _ := NewAccount(t, "Bob")
		require.NoError(t, s.Create(ctx, lower))
		require.NoError(t, s.Create(ctx, upper))

		_, err := s.GetByUsername(ctx, "BOB")
		errutil.AssertErrorKind(t, err, account.ErrNotFound, "ACCOUNT_NOT_FOUND")
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first, _ := NewAccount(t, "carol")
		second, _ := NewAccount(t, "carol")
		require.NoError(t, s.Create(ctx, first))

		err := s.Create(ctx, second)
		errutil.AssertErrorKind(t, err, account.ErrConflict, "ACCOUNT_USERNAME_TAKEN")

		_, err = s.GetByID(ctx, second.ID)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("unknown lookups are not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetByID(ctx, ulid.Make())
		errutil.AssertErrorKind(t, err, account.ErrNotFound, "ACCOUNT_NOT_FOUND")

		_, err = s.GetByTokenHash(ctx, account.HashToken("nope"))
		errutil.AssertErrorKind(t, err, account.ErrNotFound, "TOKEN_NOT_FOUND")

		_, err = s.SetStatus(ctx, ulid.Make(), account.StatusOnline)
		assert.ErrorIs(t, err, account.ErrNotFound)

		err = s.UpdatePasswordHash(ctx, ulid.Make(), "x")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("list is ordered by id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := range 3 {
			acct, _ := NewAccount(t, fmt.Sprintf("user%d", i))
			require.NoError(t, s.Create(ctx, acct))
		}

		accts, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, accts, 3)
		for i := 1; i < len(accts); i++ {
			assert.Negative(t, accts[i-1].ID.Compare(accts[i].ID))
		}
	})

	t.Run("set token replaces the previous session", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acct, _ := NewAccount(t, "dave")
		require.NoError(t, s.Create(ctx, acct))
		oldHash := acct.TokenHash

		_, newHash, err := account.GenerateToken()
		require.NoError(t, err)
		updated, err := s.SetToken(ctx, acct.ID, newHash, account.StatusOnline)
		require.NoError(t, err)
		assert.Equal(t, newHash, updated.TokenHash)
		assert.Equal(t, account.StatusOnline, updated.Status)

		_, err = s.GetByTokenHash(ctx, oldHash)
		assert.ErrorIs(t, err, account.ErrNotFound)
		got, err := s.GetByTokenHash(ctx, newHash)
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
	})

	t.Run("clear token logs out", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acct, _ := NewAccount(t, "erin")
		require.NoError(t, s.Create(ctx, acct))
		_, err := s.SetStatus(ctx, acct.ID, account.StatusOnline)
		require.NoError(t, err)

		cleared, err := s.ClearToken(ctx, acct.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, acct.ID, cleared.ID)
		assert.Empty(t, cleared.TokenHash)
		assert.False(t, cleared.LoggedIn())
		assert.Equal(t, account.StatusOffline, cleared.Status)

		_, err = s.ClearToken(ctx, acct.TokenHash)
		errutil.AssertErrorKind(t, err, account.ErrNotFound, "SESSION_NOT_FOUND")
	})

	t.Run("update profile", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acct, _ := NewAccount(t, "frank")
		other, _ := NewAccount(t, "grace")
		require.NoError(t, s.Create(ctx, acct))
		require.NoError(t, s.Create(ctx, other))

		birthday := time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC)
		updated, err := s.UpdateProfile(ctx, acct.ID, account.ProfileUpdate{Birthday: &birthday})
		require.NoError(t, err)
		require.NotNil(t, updated.Birthday)
		assert.True(t, birthday.Equal(*updated.Birthday))
		assert.Equal(t, "frank", updated.Username)

		taken := "grace"
		_, err = s.UpdateProfile(ctx, acct.ID, account.ProfileUpdate{Username: &taken})
		errutil.AssertErrorKind(t, err, account.ErrConflict, "ACCOUNT_USERNAME_TAKEN")

		renamed := "frankie"
		updated, err = s.UpdateProfile(ctx, acct.ID, account.ProfileUpdate{Username: &renamed})
		require.NoError(t, err)
		assert.Equal(t, "frankie", updated.Username)
		require.NotNil(t, updated.Birthday, "birthday must survive a rename")

		_, err = s.GetByUsername(ctx, "frank")
		assert.ErrorIs(t, err, account.ErrNotFound)
		_, err = s.GetByUsername(ctx, "frankie")
		require.NoError(t, err)

		_, err = s.UpdateProfile(ctx, ulid.Make(), account.ProfileUpdate{Username: &renamed})
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("update password hash", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acct, _ := NewAccount(t, "heidi")
		require.NoError(t, s.Create(ctx, acct))

		require.NoError(t, s.UpdatePasswordHash(ctx, acct.ID, "$argon2id$v=19$m=16,t=1,p=1$bmV3$bmV3"))
		got, err := s.GetByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$v=19$m=16,t=1,p=1$bmV3$bmV3", got.PasswordHash)
	})

	t.Run("concurrent duplicate registration admits one", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const writers = 16
		accts := make([]*account.Account, writers)
		for i := range accts {
			accts[i], _ = NewAccount(t, "mallory")
		}

		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = s.Create(ctx, accts[i])
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, account.ErrConflict)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}
