// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account implements account identity and bearer-token sessions.
//
// # Components
//
//   - Manager - account lifecycle: create, authenticate, logout, profile
//     updates, presence status
//   - Gate - bearer token resolution and ownership checks
//   - PasswordHasher - one-way password hashing (argon2id, bcrypt verify)
//   - Store - persistence contract, implemented by memstore and postgres
//
// Each account holds at most one live token. Only the SHA-256 hash of a
// token is stored; the plaintext is handed to the caller once, by
// CreateAccount or Authenticate, and issuing a new token makes the previous
// one unresolvable.
//
// # Errors
//
// Errors carry an oops code and wrap one of ErrBadRequest, ErrUnauthorized,
// ErrConflict, or ErrNotFound. Anything else is an internal failure.
package account
