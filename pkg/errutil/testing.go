// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails the test unless err is an oops error with code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, Code(err))
}

// AssertErrorContext fails the test unless err carries key=value in its
// oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	errCtx := oopsErr.Context()
	assert.Contains(t, errCtx, key)
	assert.Equal(t, value, errCtx[key])
}

// AssertErrorKind checks both the sentinel kind and the code.
func AssertErrorKind(t testing.TB, err error, kind error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "expected %v in chain, got %v", kind, err)
	AssertErrorCode(t, err, code)
}
