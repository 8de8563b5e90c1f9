// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "errors"

// Error kinds. Every error returned by this package wraps exactly one of
// these, so transports can classify failures with errors.Is.
var (
	// ErrBadRequest is returned for malformed or blank input.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized is returned for bad credentials and for missing,
	// unknown, or mismatched bearer tokens.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a requested account or session does not exist.
	ErrNotFound = errors.New("not found")
)
