// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Manager owns the account lifecycle. It is the only component that
// mutates accounts.
type Manager struct {
	store    Store
	hasher   PasswordHasher
	auth     Authorizer
	logger   *slog.Logger
	recorder Recorder
	reserved []glob.Glob
	now      func() time.Time

	// timingHash is verified when a username does not exist so that
	// unknown users and wrong passwords cost the same hasher work.
	// It hashes a random secret and matches no password.
	timingHash string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager) error

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) error {
		if logger == nil {
			return oops.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) ManagerOption {
	return func(m *Manager) error {
		if recorder != nil {
			m.recorder = recorder
		}
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) error {
		if now == nil {
			return oops.Errorf("clock cannot be nil")
		}
		m.now = now
		return nil
	}
}

// WithReservedUsernames rejects new usernames matching any of the glob
// patterns, e.g. "admin*".
func WithReservedUsernames(patterns ...string) ManagerOption {
	return func(m *Manager) error {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("pattern", p).Wrap(err)
			}
			m.reserved = append(m.reserved, g)
		}
		return nil
	}
}

// NewManager creates a new Manager.
func NewManager(store Store, hasher PasswordHasher, auth Authorizer, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, oops.Errorf("account store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if auth == nil {
		return nil, oops.Errorf("authorizer is required")
	}

	m := &Manager{
		store:    store,
		hasher:   hasher,
		auth:     auth,
		logger:   slog.Default(),
		recorder: NopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	secret, _, err := GenerateToken()
	if err != nil {
		return nil, oops.With("operation", "generate timing secret").Wrap(err)
	}
	if m.timingHash, err = hasher.Hash(secret); err != nil {
		return nil, oops.With("operation", "hash timing secret").Wrap(err)
	}
	return m, nil
}

// CreateAccount registers a new account and issues its first token.
// The account starts OFFLINE. Returns the account and plaintext token.
func (m *Manager) CreateAccount(ctx context.Context, username, password string) (*Account, string, error) {
	if err := m.validateNewUsername(username); err != nil {
		m.recorder.RegistrationResult(ResultInvalid)
		return nil, "", err
	}
	if strings.TrimSpace(password) == "" {
		m.recorder.RegistrationResult(ResultInvalid)
		return nil, "", oops.Code("ACCOUNT_INVALID_PASSWORD").Wrapf(ErrBadRequest, "password must not be empty")
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		m.recorder.RegistrationResult(ResultError)
		return nil, "", oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		m.recorder.RegistrationResult(ResultError)
		return nil, "", oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	acct, err := NewAccount(username, hash, tokenHash, m.now())
	if err != nil {
		m.recorder.RegistrationResult(ResultInvalid)
		return nil, "", err
	}

	if err := m.store.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrConflict) {
			m.recorder.RegistrationResult(ResultConflict)
			return nil, "", oops.With("username", username).Wrap(err)
		}
		m.recorder.RegistrationResult(ResultError)
		return nil, "", oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "persist account").
			With("username", username).
			Wrap(err)
	}

	m.recorder.RegistrationResult(ResultSuccess)
	m.logger.InfoContext(ctx, "account created", "account_id", acct.ID.String(), "username", acct.Username)
	return acct, token, nil
}

// Authenticate verifies credentials, replaces the account's token with a
// fresh one, and marks the account ONLINE.
// Unknown usernames and wrong passwords produce the same error.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*Account, string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		m.recorder.LoginResult(ResultInvalid)
		return nil, "", oops.Code("AUTH_MISSING_CREDENTIALS").Wrapf(ErrBadRequest, "username and password are required")
	}

	acct, lookupErr := m.store.GetByUsername(ctx, username)

	var targetHash string
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = acct.PasswordHash
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = m.timingHash
	default:
		m.recorder.LoginResult(ResultError)
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by username").
			Wrap(lookupErr)
	}

	// Always verify so both failure paths cost the same.
	valid, verifyErr := m.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		m.recorder.LoginResult(ResultError)
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("account_id", acct.ID.String()).
			Wrap(verifyErr)
	}
	if !exists || !valid {
		m.recorder.LoginResult(ResultDenied)
		m.logger.InfoContext(ctx, "login failed", "reason", "invalid credentials")
		return nil, "", invalidCredentials()
	}

	if m.hasher.NeedsUpgrade(acct.PasswordHash) {
		m.upgradePasswordHash(ctx, acct.ID, password)
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		m.recorder.LoginResult(ResultError)
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	updated, err := m.store.SetToken(ctx, acct.ID, tokenHash, StatusOnline)
	if errors.Is(err, ErrNotFound) {
		// Account removed between lookup and token issue.
		m.recorder.LoginResult(ResultDenied)
		return nil, "", invalidCredentials()
	}
	if err != nil {
		m.recorder.LoginResult(ResultError)
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			With("account_id", acct.ID.String()).
			Wrap(err)
	}

	m.recorder.LoginResult(ResultSuccess)
	m.logger.InfoContext(ctx, "login succeeded", "account_id", updated.ID.String())
	return updated, token, nil
}

// Logout invalidates token and marks its account OFFLINE.
// Returns the ID of the account that held the token.
func (m *Manager) Logout(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("AUTH_TOKEN_MISSING").Wrapf(ErrUnauthorized, "bearer token is required")
	}

	acct, err := m.store.ClearToken(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return ulid.ULID{}, oops.With("operation", "logout").Wrap(err)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "clear token").
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "logout", "account_id", acct.ID.String())
	return acct.ID, nil
}

// GetAccount returns the account with the given ID.
func (m *Manager) GetAccount(ctx context.Context, id ulid.ULID) (*Account, error) {
	acct, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "get account").With("id", id.String()).Wrap(err)
	}
	return acct, nil
}

// ListAccounts returns all accounts.
func (m *Manager) ListAccounts(ctx context.Context) ([]*Account, error) {
	accts, err := m.store.List(ctx)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	return accts, nil
}

// UpdateProfile changes the username and/or birthday of account id.
// requestorToken must belong to id. A birthday of nil is left unchanged;
// a username equal to the current one is a no-op.
func (m *Manager) UpdateProfile(ctx context.Context, id ulid.ULID, update ProfileUpdate, requestorToken string) (*Account, error) {
	if err := m.auth.AuthorizeForAccount(ctx, requestorToken, id); err != nil {
		return nil, err
	}

	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "update profile").With("id", id.String()).Wrap(err)
	}

	var change ProfileUpdate
	if update.Username != nil && *update.Username != current.Username {
		if err := m.validateNewUsername(*update.Username); err != nil {
			return nil, err
		}
		username := *update.Username
		change.Username = &username
	}
	if update.Birthday != nil {
		birthday := DateOf(*update.Birthday)
		change.Birthday = &birthday
	}
	if change.Empty() {
		return current, nil
	}

	updated, err := m.store.UpdateProfile(ctx, id, change)
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return nil, oops.With("operation", "update profile").Wrap(err)
		}
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "profile updated", "account_id", id.String(),
		"username_changed", change.Username != nil,
		"birthday_changed", change.Birthday != nil,
	)
	return updated, nil
}

// ChangeStatus sets the presence status of account id. Callers are
// expected to have authenticated the request already.
func (m *Manager) ChangeStatus(ctx context.Context, id ulid.ULID, status Status) (*Account, error) {
	if !status.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_STATUS").
			With("status", string(status)).
			Wrapf(ErrBadRequest, "unknown status %q", status)
	}

	acct, err := m.store.SetStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.With("operation", "change status").Wrap(err)
		}
		return nil, oops.Code("ACCOUNT_STATUS_FAILED").
			With("operation", "change status").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

func (m *Manager) validateNewUsername(username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	for _, g := range m.reserved {
		if g.Match(username) {
			return oops.Code("ACCOUNT_USERNAME_RESERVED").
				With("username", username).
				Wrapf(ErrBadRequest, "username %q is reserved", username)
		}
	}
	return nil
}

// upgradePasswordHash rehashes with current parameters. Login succeeds
// even if the upgrade fails.
func (m *Manager) upgradePasswordHash(ctx context.Context, id ulid.ULID, password string) {
	newHash, err := m.hasher.Hash(password)
	if err != nil {
		m.logger.WarnContext(ctx, "password hash upgrade failed", "account_id", id.String(), "error", err)
		return
	}
	if err := m.store.UpdatePasswordHash(ctx, id, newHash); err != nil {
		m.logger.WarnContext(ctx, "password hash upgrade not persisted", "account_id", id.String(), "error", err)
	}
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrapf(ErrUnauthorized, "invalid username or password")
}
