// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides a PostgreSQL implementation of account.Store.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
)

// Constraint names from the accounts migration.
const (
	usernameConstraint  = "accounts_username_key"
	tokenHashConstraint = "accounts_token_hash_key"
)

const accountColumns = `id, username, password_hash, status, birthday, creation_date, token_hash, updated_at`

// poolIface is the subset of pgxpool.Pool used by AccountStore.
// pgxmock.PgxPoolIface satisfies it for unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// AccountStore implements account.Store using PostgreSQL.
// Uniqueness of usernames and tokens is enforced by table constraints, so
// concurrent writers cannot both succeed.
type AccountStore struct {
	pool poolIface
	now  func() time.Time
}

var _ account.Store = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool poolIface) *AccountStore {
	return &AccountStore{pool: pool, now: time.Now}
}

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, acct *account.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		acct.ID.String(),
		acct.Username,
		acct.PasswordHash,
		string(acct.Status),
		acct.Birthday,
		acct.CreationDate,
		nullableString(acct.TokenHash),
		acct.UpdatedAt,
	)
	if isUniqueViolation(err, usernameConstraint) {
		return usernameTaken(acct.Username, err)
	}
	if isUniqueViolation(err, tokenHashConstraint) {
		return tokenCollision(err)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", acct.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// GetByUsername retrieves an account by exact username.
func (s *AccountStore) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_USERNAME_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	return acct, nil
}

// GetByTokenHash retrieves the account holding the token.
func (s *AccountStore) GetByTokenHash(ctx context.Context, tokenHash string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE token_hash = $1`, tokenHash)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_TOKEN_FAILED").
			With("operation", "get account by token hash").
			Wrap(err)
	}
	return acct, nil
}

// List returns all accounts ordered by ID.
func (s *AccountStore) List(ctx context.Context) ([]*account.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	accts := make([]*account.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan account row").Wrap(err)
		}
		accts = append(accts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accts, nil
}

// SetToken replaces the token hash and status in a single UPDATE.
func (s *AccountStore) SetToken(ctx context.Context, id ulid.ULID, tokenHash string, status account.Status) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET token_hash = $2, status = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+accountColumns,
		id.String(), nullableString(tokenHash), string(status), s.now().UTC(),
	)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if isUniqueViolation(err, tokenHashConstraint) {
		return nil, tokenCollision(err)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_SET_TOKEN_FAILED").
			With("operation", "set token").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// ClearToken removes the token and marks its holder OFFLINE in a single UPDATE.
func (s *AccountStore) ClearToken(ctx context.Context, tokenHash string) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET token_hash = NULL, status = $2, updated_at = $3
		WHERE token_hash = $1
		RETURNING `+accountColumns,
		tokenHash, string(account.StatusOffline), s.now().UTC(),
	)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_CLEAR_TOKEN_FAILED").
			With("operation", "clear token").
			Wrap(err)
	}
	return acct, nil
}

// SetStatus changes the presence status of an account.
func (s *AccountStore) SetStatus(ctx context.Context, id ulid.ULID, status account.Status) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+accountColumns,
		id.String(), string(status), s.now().UTC(),
	)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_SET_STATUS_FAILED").
			With("operation", "set status").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// UpdateProfile applies the non-nil fields of update in a single UPDATE.
func (s *AccountStore) UpdateProfile(ctx context.Context, id ulid.ULID, update account.ProfileUpdate) (*account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET username = COALESCE($2, username),
		    birthday = COALESCE($3, birthday),
		    updated_at = $4
		WHERE id = $1
		RETURNING `+accountColumns,
		id.String(), update.Username, update.Birthday, s.now().UTC(),
	)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if isUniqueViolation(err, usernameConstraint) {
		return nil, usernameTaken(*update.Username, err)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}
	return acct, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id.String(), passwordHash, s.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// Ping checks database connectivity.
func (s *AccountStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// scanAccount scans a row into an Account. Works with both pgx.Row and pgx.Rows.
func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		acct      account.Account
		idStr     string
		status    string
		tokenHash *string
	)
	if err := row.Scan(
		&idStr,
		&acct.Username,
		&acct.PasswordHash,
		&status,
		&acct.Birthday,
		&acct.CreationDate,
		&tokenHash,
		&acct.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	acct.ID = id
	acct.Status = account.Status(status)
	if tokenHash != nil {
		acct.TokenHash = *tokenHash
	}
	return &acct, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == constraint
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func notFound(id ulid.ULID) error {
	return oops.Code("ACCOUNT_NOT_FOUND").
		With("id", id.String()).
		Wrap(account.ErrNotFound)
}

func usernameTaken(username string, cause error) error {
	return oops.Code("ACCOUNT_USERNAME_TAKEN").
		With("username", username).
		With("constraint", usernameConstraint).
		With("cause", cause.Error()).
		Wrapf(account.ErrConflict, "the username provided is not unique")
}

// tokenCollision is an internal failure, not a Conflict: token hashes are
// random and a collision means the generator is broken.
func tokenCollision(cause error) error {
	return oops.Code("TOKEN_COLLISION").
		With("constraint", tokenHashConstraint).
		Wrap(cause)
}
