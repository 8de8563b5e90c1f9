// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Status is the presence state of an account.
type Status string

// Presence states.
const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", oops.Code("ACCOUNT_INVALID_STATUS").
			With("status", s).
			Wrapf(ErrBadRequest, "unknown status %q", s)
	}
	return st, nil
}

// MaxUsernameLength is the maximum username length in runes.
const MaxUsernameLength = 64

// Account is a registered identity.
type Account struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string
	Status       Status
	Birthday     *time.Time // calendar date, nil if unset
	CreationDate time.Time  // calendar date
	TokenHash    string     // empty when logged out
	UpdatedAt    time.Time
}

// NewAccount creates a validated Account with status OFFLINE.
// Returns an error if the username or password hash is invalid.
func NewAccount(username, passwordHash, tokenHash string, now time.Time) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Wrapf(ErrBadRequest, "password hash cannot be empty")
	}
	return &Account{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		Status:       StatusOffline,
		CreationDate: DateOf(now),
		TokenHash:    tokenHash,
		UpdatedAt:    now.UTC(),
	}, nil
}

// LoggedIn reports whether the account currently holds a live token.
func (a *Account) LoggedIn() bool {
	return a.TokenHash != ""
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.Birthday != nil {
		b := *a.Birthday
		c.Birthday = &b
	}
	return &c
}

// ProfileUpdate carries the optional fields of a profile change.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Username *string
	Birthday *time.Time
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.Birthday == nil
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateUsername checks that a username is usable.
// Usernames are case-sensitive, must not be blank, must be at most
// MaxUsernameLength runes, and must not contain control characters.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Wrapf(ErrBadRequest, "username must not be empty")
	}
	if !utf8.ValidString(username) {
		return oops.Code("ACCOUNT_INVALID_USERNAME").Wrapf(ErrBadRequest, "username must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(username); n > MaxUsernameLength {
		return oops.Code("ACCOUNT_INVALID_USERNAME").
			With("length", n).
			Wrapf(ErrBadRequest, "username must be at most %d characters", MaxUsernameLength)
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return oops.Code("ACCOUNT_INVALID_USERNAME").Wrapf(ErrBadRequest, "username must not contain control characters")
		}
	}
	return nil
}
