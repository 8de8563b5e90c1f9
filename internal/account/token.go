// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the number of random bytes in a bearer token (64 hex chars).
const TokenBytes = 32

// GenerateToken creates a secure random bearer token and its hash.
// The plaintext token is returned to the client; only the hash is stored.
func GenerateToken() (token, hash string, err error) {
	buf := make([]byte, TokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hash of a bearer token, hex encoded.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored hash using a
// constant-time comparison.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
