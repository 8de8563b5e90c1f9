// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore provides an in-memory account.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
)

// Store is a volatile account.Store guarded by a single RWMutex.
// The username and token indexes are updated in the same critical section
// as the primary record.
type Store struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*account.Account
	byUsername map[string]ulid.ULID
	byToken    map[string]ulid.ULID
	now        func() time.Time
}

var _ account.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:       make(map[ulid.ULID]*account.Account),
		byUsername: make(map[string]ulid.ULID),
		byToken:    make(map[string]ulid.ULID),
		now:        time.Now,
	}
}

// Create stores a new account.
func (s *Store) Create(_ context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[acct.Username]; taken {
		return usernameTaken(acct.Username)
	}
	if _, exists := s.byID[acct.ID]; exists {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("id", acct.ID.String()).
			Errorf("account id already exists")
	}
	if acct.TokenHash != "" {
		if _, exists := s.byToken[acct.TokenHash]; exists {
			return tokenCollision()
		}
		s.byToken[acct.TokenHash] = acct.ID
	}

	s.byID[acct.ID] = acct.Clone()
	s.byUsername[acct.Username] = acct.ID
	return nil
}

// GetByID retrieves an account by ID.
func (s *Store) GetByID(_ context.Context, id ulid.ULID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	return acct.Clone(), nil
}

// GetByUsername retrieves an account by username.
func (s *Store) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(account.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

// GetByTokenHash retrieves the account holding the token.
func (s *Store) GetByTokenHash(_ context.Context, tokenHash string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[tokenHash]
	if !ok {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

// List returns all accounts ordered by ID, which sorts by creation time.
func (s *Store) List(_ context.Context) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accts := make([]*account.Account, 0, len(s.byID))
	for _, acct := range s.byID {
		accts = append(accts, acct.Clone())
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].ID.Compare(accts[j].ID) < 0 })
	return accts, nil
}

// SetToken replaces the account's token and status.
func (s *Store) SetToken(_ context.Context, id ulid.ULID, tokenHash string, status account.Status) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	if owner, exists := s.byToken[tokenHash]; exists && owner != id {
		return nil, tokenCollision()
	}

	if acct.TokenHash != "" {
		delete(s.byToken, acct.TokenHash)
	}
	acct.TokenHash = tokenHash
	acct.Status = status
	acct.UpdatedAt = s.now().UTC()
	if tokenHash != "" {
		s.byToken[tokenHash] = id
	}
	return acct.Clone(), nil
}

// ClearToken logs out whichever account holds the token.
func (s *Store) ClearToken(_ context.Context, tokenHash string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	delete(s.byToken, tokenHash)

	acct := s.byID[id]
	acct.TokenHash = ""
	acct.Status = account.StatusOffline
	acct.UpdatedAt = s.now().UTC()
	return acct.Clone(), nil
}

// SetStatus changes the presence status of an account.
func (s *Store) SetStatus(_ context.Context, id ulid.ULID, status account.Status) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}
	acct.Status = status
	acct.UpdatedAt = s.now().UTC()
	return acct.Clone(), nil
}

// UpdateProfile applies a rename and/or birthday change.
func (s *Store) UpdateProfile(_ context.Context, id ulid.ULID, update account.ProfileUpdate) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, notFound(id)
	}

	if update.Username != nil && *update.Username != acct.Username {
		if _, taken := s.byUsername[*update.Username]; taken {
			return nil, usernameTaken(*update.Username)
		}
		delete(s.byUsername, acct.Username)
		acct.Username = *update.Username
		s.byUsername[acct.Username] = id
	}
	if update.Birthday != nil {
		b := *update.Birthday
		acct.Birthday = &b
	}
	acct.UpdatedAt = s.now().UTC()
	return acct.Clone(), nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *Store) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	acct.PasswordHash = passwordHash
	acct.UpdatedAt = s.now().UTC()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func notFound(id ulid.ULID) error {
	return oops.Code("ACCOUNT_NOT_FOUND").
		With("id", id.String()).
		Wrap(account.ErrNotFound)
}

func usernameTaken(username string) error {
	return oops.Code("ACCOUNT_USERNAME_TAKEN").
		With("username", username).
		Wrapf(account.ErrConflict, "the username provided is not unique")
}

func tokenCollision() error {
	return oops.Code("TOKEN_COLLISION").Errorf("token hash already in use")
}
