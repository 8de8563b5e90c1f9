// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follow the OWASP recommendation.
var DefaultArgon2Params = Argon2Params{
	MemoryKiB:   64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("ACCOUNT_EMPTY_PASSWORD").Wrapf(ErrBadRequest, "password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be rehashed with current parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It also verifies bcrypt hashes so accounts imported from older
// deployments can log in and be upgraded.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher. Zero fields in params
// fall back to DefaultArgon2Params.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = DefaultArgon2Params.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultArgon2Params.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultArgon2Params.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultArgon2Params.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultArgon2Params.KeyLength
	}
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("ACCOUNT_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the password matches an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, oops.Code("ACCOUNT_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
		}
		return true, nil
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Errorf("invalid parallelism %d", threads)
	}
	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("ACCOUNT_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true for non-argon2id hashes and for argon2id
// hashes produced with different cost parameters.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	if !strings.HasPrefix(hash, "$argon2id$") {
		return true
	}
	want := fmt.Sprintf("$m=%d,t=%d,p=%d$", h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism)
	return !strings.Contains(hash, want)
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}
