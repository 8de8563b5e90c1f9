// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/pkg/errutil"
)

func TestDate_JSON(t *testing.T) {
	d := Date{time.Date(2000, time.February, 29, 0, 0, 0, 0, time.UTC)}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"29.02.2000"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, d.Equal(back.Time))
}

func TestDate_UnmarshalRejects(t *testing.T) {
	for _, in := range []string{`"2000-02-29"`, `"31.02.2000"`, `"1.1.2000"`, `20000229`} {
		t.Run(in, func(t *testing.T) {
			var d Date
			err := json.Unmarshal([]byte(in), &d)
			require.Error(t, err)
			assert.ErrorIs(t, err, account.ErrBadRequest)
			errutil.AssertErrorCode(t, err, "INVALID_DATE")
		})
	}
}

func TestProfileRequest_Update(t *testing.T) {
	var req profileRequest
	require.NoError(t, json.Unmarshal([]byte(`{"birthday":null}`), &req))
	assert.True(t, req.update().Empty())

	require.NoError(t, json.Unmarshal([]byte(`{"username":"neo","birthday":"01.01.1990"}`), &req))
	u := req.update()
	require.NotNil(t, u.Username)
	assert.Equal(t, "neo", *u.Username)
	require.NotNil(t, u.Birthday)
	assert.Equal(t, time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC), *u.Birthday)
}

func TestNewAccountResponse(t *testing.T) {
	birthday := time.Date(1990, time.May, 4, 0, 0, 0, 0, time.UTC)
	acct := &account.Account{
		ID:           ulid.Make(),
		Username:     "neo",
		PasswordHash: "$argon2id$secret",
		Status:       account.StatusOnline,
		Birthday:     &birthday,
		CreationDate: time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC),
		TokenHash:    "deadbeef",
	}

	b, err := json.Marshal(newAccountResponse(acct, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "`+acct.ID.String()+`",
		"username": "neo",
		"status": "ONLINE",
		"birthday": "04.05.1990",
		"creationDate": "16.10.2026"
	}`, string(b))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{oops.Wrapf(account.ErrBadRequest, "x"), http.StatusBadRequest},
		{oops.Wrapf(account.ErrUnauthorized, "x"), http.StatusUnauthorized},
		{oops.Wrapf(account.ErrNotFound, "x"), http.StatusNotFound},
		{oops.Wrapf(account.ErrConflict, "x"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestClientMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"bad request", oops.Code("INVALID_BODY").Wrapf(account.ErrBadRequest, "body contains unknown key %q", "nope"), `body contains unknown key "nope"`},
		{"unauthorized", oops.Wrapf(account.ErrUnauthorized, "invalid bearer token"), "invalid bearer token"},
		{"rewrapped", oops.With("operation", "logout").Wrap(oops.Wrapf(account.ErrNotFound, "session not found")), "session not found"},
		{"bare kind", oops.Wrap(account.ErrConflict), "conflict"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clientMessage(tt.err))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"auth-token header", map[string]string{AuthTokenHeader: "abc"}, "abc"},
		{"bearer header", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"bearer is case-insensitive", map[string]string{"Authorization": "bearer  abc "}, "abc"},
		{"auth-token wins", map[string]string{AuthTokenHeader: "one", "Authorization": "Bearer two"}, "one"},
		{"basic ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, bearerToken(req))
		})
	}
}
