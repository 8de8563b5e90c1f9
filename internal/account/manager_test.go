// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/internal/account/memstore"
	"github.com/holomush/identity/internal/account/mocks"
	"github.com/holomush/identity/pkg/errutil"
)

type managerFixture struct {
	mgr   *account.Manager
	store *memstore.Store
	gate  *account.Gate
	rec   *recordingRecorder
}

func newManager(t *testing.T, opts ...account.ManagerOption) *managerFixture {
	t.Helper()
	store := memstore.New()
	rec := &recordingRecorder{}
	gate, err := account.NewGate(store, rec)
	require.NoError(t, err)
	opts = append([]account.ManagerOption{account.WithRecorder(rec)}, opts...)
	mgr, err := account.NewManager(store, account.NewArgon2idHasher(cheapParams), gate, opts...)
	require.NoError(t, err)
	return &managerFixture{mgr: mgr, store: store, gate: gate, rec: rec}
}

func strPtr(s string) *string { return &s }

// timingHash is what newMockHasher returns for the hash NewManager computes
// up front for unknown-user logins.
const timingHash = "$argon2id$v=19$m=64,t=1,p=1$timing$timing"

// newMockHasher returns a mock hasher that expects the single Hash call
// NewManager makes.
func newMockHasher(t *testing.T) *mocks.MockPasswordHasher {
	t.Helper()
	hasher := mocks.NewMockPasswordHasher(t)
	hasher.On("Hash", mock.AnythingOfType("string")).Return(timingHash, nil).Once()
	return hasher
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	store := memstore.New()
	hasher := account.NewArgon2idHasher(cheapParams)
	gate, err := account.NewGate(store, nil)
	require.NoError(t, err)

	_, err = account.NewManager(nil, hasher, gate)
	assert.ErrorContains(t, err, "account store is required")
	_, err = account.NewManager(store, nil, gate)
	assert.ErrorContains(t, err, "password hasher is required")
	_, err = account.NewManager(store, hasher, nil)
	assert.ErrorContains(t, err, "authorizer is required")

	_, err = account.NewManager(store, hasher, gate, account.WithLogger(nil))
	assert.ErrorContains(t, err, "logger cannot be nil")
	_, err = account.NewManager(store, hasher, gate, account.WithClock(nil))
	assert.ErrorContains(t, err, "clock cannot be nil")
	_, err = account.NewManager(store, hasher, gate, account.WithReservedUsernames("[unclosed"))
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestManager_CreateAccount(t *testing.T) {
	now := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	f := newManager(t, account.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	acct, token, err := f.mgr.CreateAccount(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Username)
	assert.Equal(t, account.StatusOffline, acct.Status)
	assert.Equal(t, account.DateOf(now), acct.CreationDate)
	assert.Nil(t, acct.Birthday)
	assert.NotEqual(t, "s3cret", acct.PasswordHash)
	assert.Len(t, token, 2*account.TokenBytes)

	id, err := f.gate.AuthenticateBearer(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id, "registration token must authenticate")

	assert.Equal(t, []string{account.ResultSuccess}, f.rec.registrations)
}

func TestManager_CreateAccount_Rejections(t *testing.T) {
	f := newManager(t, account.WithReservedUsernames("admin*", "root"))
	ctx := context.Background()
	_, _, err := f.mgr.CreateAccount(ctx, "taken", "pw")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		kind     error
		code     string
	}{
		{"blank username", " ", "pw", account.ErrBadRequest, "ACCOUNT_INVALID_USERNAME"},
		{"blank password", "bob", "  ", account.ErrBadRequest, "ACCOUNT_INVALID_PASSWORD"},
		{"reserved exact", "root", "pw", account.ErrBadRequest, "ACCOUNT_USERNAME_RESERVED"},
		{"reserved glob", "administrator", "pw", account.ErrBadRequest, "ACCOUNT_USERNAME_RESERVED"},
		{"duplicate", "taken", "other", account.ErrConflict, "ACCOUNT_USERNAME_TAKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct, token, err := f.mgr.CreateAccount(ctx, tt.username, tt.password)
			errutil.AssertErrorKind(t, err, tt.kind, tt.code)
			assert.Nil(t, acct)
			assert.Empty(t, token)
		})
	}

	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, []string{
		account.ResultSuccess,
		account.ResultInvalid,
		account.ResultInvalid,
		account.ResultInvalid,
		account.ResultInvalid,
		account.ResultConflict,
	}, f.rec.registrations)
}

func TestManager_CreateAccount_StoreFailure(t *testing.T) {
	store := mocks.NewMockStore(t)
	hasher := newMockHasher(t)
	mgr, err := account.NewManager(store, hasher, mocks.NewMockAuthorizer(t))
	require.NoError(t, err)

	hasher.On("Hash", "pw").Return("hashed", nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*account.Account")).
		Return(errors.New("disk full"))

	_, _, err = mgr.CreateAccount(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, account.ErrConflict)
	errutil.AssertErrorCode(t, err, "ACCOUNT_CREATE_FAILED")
}

func TestManager_Authenticate(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	created, regToken, err := f.mgr.CreateAccount(ctx, "alice", "s3cret")
	require.NoError(t, err)

	acct, token, err := f.mgr.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, acct.ID)
	assert.Equal(t, account.StatusOnline, acct.Status)
	assert.NotEqual(t, regToken, token)

	_, err = f.gate.AuthenticateBearer(ctx, regToken)
	assert.ErrorIs(t, err, account.ErrUnauthorized, "previous token must be revoked")
	id, err := f.gate.AuthenticateBearer(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)
}

func TestManager_Authenticate_SecondLoginRevokesFirst(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	_, _, err := f.mgr.CreateAccount(ctx, "alice", "pw")
	require.NoError(t, err)

	_, first, err := f.mgr.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)
	_, second, err := f.mgr.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)

	assert.ErrorIs(t, f.gate.AuthorizeAny(ctx, first), account.ErrUnauthorized)
	assert.NoError(t, f.gate.AuthorizeAny(ctx, second))
}

func TestManager_Authenticate_Failures(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	_, _, err := f.mgr.CreateAccount(ctx, "alice", "s3cret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		kind     error
		code     string
	}{
		{"wrong password", "alice", "nope", account.ErrUnauthorized, "AUTH_INVALID_CREDENTIALS"},
		{"unknown user", "mallory", "s3cret", account.ErrUnauthorized, "AUTH_INVALID_CREDENTIALS"},
		{"wrong case", "Alice", "s3cret", account.ErrUnauthorized, "AUTH_INVALID_CREDENTIALS"},
		{"missing username", "", "s3cret", account.ErrBadRequest, "AUTH_MISSING_CREDENTIALS"},
		{"missing password", "alice", "", account.ErrBadRequest, "AUTH_MISSING_CREDENTIALS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct, token, err := f.mgr.Authenticate(ctx, tt.username, tt.password)
			errutil.AssertErrorKind(t, err, tt.kind, tt.code)
			assert.Nil(t, acct)
			assert.Empty(t, token)
		})
	}

	stored, err := f.store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, account.StatusOffline, stored.Status, "failed logins must not change state")
}

func TestManager_Authenticate_SameErrorForUnknownAndWrong(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	_, _, err := f.mgr.CreateAccount(ctx, "alice", "s3cret")
	require.NoError(t, err)

	_, _, wrongPw := f.mgr.Authenticate(ctx, "alice", "bad")
	_, _, unknown := f.mgr.Authenticate(ctx, "nobody", "bad")
	assert.Equal(t, wrongPw.Error(), unknown.Error())
	assert.Equal(t, errutil.Code(wrongPw), errutil.Code(unknown))
}

func TestManager_Authenticate_VerifiesUnknownUsers(t *testing.T) {
	store := mocks.NewMockStore(t)
	hasher := newMockHasher(t)
	mgr, err := account.NewManager(store, hasher, mocks.NewMockAuthorizer(t))
	require.NoError(t, err)

	store.On("GetByUsername", mock.Anything, "ghost").
		Return(nil, oops.Wrap(account.ErrNotFound))
	hasher.On("Verify", "pw", timingHash).Return(false, nil).Once()

	_, _, err = mgr.Authenticate(context.Background(), "ghost", "pw")
	errutil.AssertErrorKind(t, err, account.ErrUnauthorized, "AUTH_INVALID_CREDENTIALS")
}

// verifyRecorder wraps a real hasher and records the hashes passed to Verify.
type verifyRecorder struct {
	*account.Argon2idHasher
	verified []string
}

func (h *verifyRecorder) Verify(password, hash string) (bool, error) {
	h.verified = append(h.verified, hash)
	return h.Argon2idHasher.Verify(password, hash)
}

func TestManager_Authenticate_UnknownUserCostsConfiguredWork(t *testing.T) {
	params := account.Argon2Params{MemoryKiB: 8, Iterations: 2, Parallelism: 1}
	store := memstore.New()
	gate, err := account.NewGate(store, nil)
	require.NoError(t, err)
	hasher := &verifyRecorder{Argon2idHasher: account.NewArgon2idHasher(params)}
	mgr, err := account.NewManager(store, hasher, gate)
	require.NoError(t, err)

	_, _, err = mgr.Authenticate(context.Background(), "ghost", "pw")
	errutil.AssertErrorKind(t, err, account.ErrUnauthorized, "AUTH_INVALID_CREDENTIALS")

	require.Len(t, hasher.verified, 1)
	assert.Contains(t, hasher.verified[0], "$m=8,t=2,p=1$")
	assert.False(t, hasher.NeedsUpgrade(hasher.verified[0]))
}

func TestNewManager_TimingHashFailure(t *testing.T) {
	hasher := mocks.NewMockPasswordHasher(t)
	hasher.On("Hash", mock.AnythingOfType("string")).Return("", errors.New("out of memory")).Once()

	_, err := account.NewManager(memstore.New(), hasher, mocks.NewMockAuthorizer(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "out of memory")
}

func TestManager_Authenticate_UpgradesLegacyHash(t *testing.T) {
	store := mocks.NewMockStore(t)
	hasher := newMockHasher(t)
	mgr, err := account.NewManager(store, hasher, mocks.NewMockAuthorizer(t))
	require.NoError(t, err)

	acct := &account.Account{ID: ulid.Make(), Username: "old", PasswordHash: "$2a$legacy", Status: account.StatusOffline}
	store.On("GetByUsername", mock.Anything, "old").Return(acct, nil)
	hasher.On("Verify", "pw", "$2a$legacy").Return(true, nil)
	hasher.On("NeedsUpgrade", "$2a$legacy").Return(true)
	hasher.On("Hash", "pw").Return("$argon2id$new", nil)
	store.On("UpdatePasswordHash", mock.Anything, acct.ID, "$argon2id$new").Return(nil)
	store.On("SetToken", mock.Anything, acct.ID, mock.AnythingOfType("string"), account.StatusOnline).
		Return(&account.Account{ID: acct.ID, Username: "old", Status: account.StatusOnline}, nil)

	got, token, err := mgr.Authenticate(context.Background(), "old", "pw")
	require.NoError(t, err)
	assert.Equal(t, account.StatusOnline, got.Status)
	assert.NotEmpty(t, token)
}

func TestManager_Authenticate_UpgradeFailureStillLogsIn(t *testing.T) {
	store := mocks.NewMockStore(t)
	hasher := newMockHasher(t)
	var buf bytes.Buffer
	mgr, err := account.NewManager(store, hasher, mocks.NewMockAuthorizer(t),
		account.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	require.NoError(t, err)

	acct := &account.Account{ID: ulid.Make(), Username: "old", PasswordHash: "$2a$legacy"}
	store.On("GetByUsername", mock.Anything, "old").Return(acct, nil)
	hasher.On("Verify", "pw", "$2a$legacy").Return(true, nil)
	hasher.On("NeedsUpgrade", "$2a$legacy").Return(true)
	hasher.On("Hash", "pw").Return("$argon2id$new", nil)
	store.On("UpdatePasswordHash", mock.Anything, acct.ID, "$argon2id$new").Return(errors.New("timeout"))
	store.On("SetToken", mock.Anything, acct.ID, mock.AnythingOfType("string"), account.StatusOnline).
		Return(&account.Account{ID: acct.ID, Status: account.StatusOnline}, nil)

	_, _, err = mgr.Authenticate(context.Background(), "old", "pw")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "password hash upgrade not persisted")
}

func TestManager_Authenticate_AccountVanished(t *testing.T) {
	store := mocks.NewMockStore(t)
	hasher := newMockHasher(t)
	mgr, err := account.NewManager(store, hasher, mocks.NewMockAuthorizer(t))
	require.NoError(t, err)

	acct := &account.Account{ID: ulid.Make(), Username: "gone", PasswordHash: "h"}
	store.On("GetByUsername", mock.Anything, "gone").Return(acct, nil)
	hasher.On("Verify", "pw", "h").Return(true, nil)
	hasher.On("NeedsUpgrade", "h").Return(false)
	store.On("SetToken", mock.Anything, acct.ID, mock.Anything, account.StatusOnline).
		Return(nil, oops.Wrap(account.ErrNotFound))

	_, _, err = mgr.Authenticate(context.Background(), "gone", "pw")
	errutil.AssertErrorKind(t, err, account.ErrUnauthorized, "AUTH_INVALID_CREDENTIALS")
}

func TestManager_Authenticate_DoesNotLogSecrets(t *testing.T) {
	var buf bytes.Buffer
	f := newManager(t, account.WithLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	ctx := context.Background()

	_, regToken, err := f.mgr.CreateAccount(ctx, "alice", "hunter2")
	require.NoError(t, err)
	_, token, err := f.mgr.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)
	_, _, _ = f.mgr.Authenticate(ctx, "alice", "wrong-guess")

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "wrong-guess")
	assert.NotContains(t, out, regToken)
	assert.NotContains(t, out, token)

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "log lines must be JSON")
	}
}

func TestManager_Logout(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	created, _, err := f.mgr.CreateAccount(ctx, "alice", "pw")
	require.NoError(t, err)
	_, token, err := f.mgr.Authenticate(ctx, "alice", "pw")
	require.NoError(t, err)

	id, err := f.mgr.Logout(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)

	acct, err := f.mgr.GetAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusOffline, acct.Status)
	assert.False(t, acct.LoggedIn())

	assert.ErrorIs(t, f.gate.AuthorizeAny(ctx, token), account.ErrUnauthorized)

	_, err = f.mgr.Logout(ctx, token)
	errutil.AssertErrorKind(t, err, account.ErrNotFound, "SESSION_NOT_FOUND")

	_, err = f.mgr.Logout(ctx, "")
	errutil.AssertErrorKind(t, err, account.ErrUnauthorized, "AUTH_TOKEN_MISSING")
}

func TestManager_GetAndList(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()

	accts, err := f.mgr.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accts)

	a, _, err := f.mgr.CreateAccount(ctx, "alice", "pw")
	require.NoError(t, err)
	b, _, err := f.mgr.CreateAccount(ctx, "bob", "pw")
	require.NoError(t, err)

	accts, err = f.mgr.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.ElementsMatch(t, []ulid.ULID{a.ID, b.ID}, []ulid.ULID{accts[0].ID, accts[1].ID})

	got, err := f.mgr.GetAccount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	_, err = f.mgr.GetAccount(ctx, ulid.Make())
	errutil.AssertErrorKind(t, err, account.ErrNotFound, "ACCOUNT_NOT_FOUND")
}

func TestManager_UpdateProfile(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	alice, aliceToken, err := f.mgr.CreateAccount(ctx, "alice", "pw")
	require.NoError(t, err)
	_, bobToken, err := f.mgr.CreateAccount(ctx, "bob", "pw")
	require.NoError(t, err)

	birthday := time.Date(1990, time.May, 17, 15, 4, 0, 0, time.UTC)
	updated, err := f.mgr.UpdateProfile(ctx, alice.ID, account.ProfileUpdate{
		Username: strPtr("alicia"),
		Birthday: &birthday,
	}, aliceToken)
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)
	require.NotNil(t, updated.Birthday)
	assert.Equal(t, time.Date(1990, time.May, 17, 0, 0, 0, 0, time.UTC), *updated.Birthday)

	t.Run("other account's token is rejected", func(t *testing.T) {
		_, err := f.mgr.UpdateProfile(ctx, alice.ID, account.ProfileUpdate{Username: strPtr("hijacked")}, bobToken)
		errutil.AssertErrorKind(t, err, account.ErrUnauthorized, "AUTH_NOT_OWNER")
	})

	t.Run("taken username conflicts", func(t *testing.T) {
		_, err := f.mgr.UpdateProfile(ctx, alice.ID, account.ProfileUpdate{Username: strPtr("bob")}, aliceToken)
		errutil.AssertErrorKind(t, err, account.ErrConflict, "ACCOUNT_USERNAME_TAKEN")
	})

	t.Run("blank username is a bad request", func(t *testing.T) {
		_, err := f.mgr.UpdateProfile(ctx, alice.ID, account.ProfileUpdate{Username: strPtr("")}, aliceToken)
		errutil.AssertErrorKind(t, err, account.ErrBadRequest, "ACCOUNT_INVALID_USERNAME")
	})

	t.Run("same username keeps birthday", func(t *testing.T) {
		got, err := f.mgr.UpdateProfile(ctx, alice.ID, account.ProfileUpdate{Username: strPtr("alicia")}, aliceToken)
		require.NoError(t, err)
		assert.Equal(t, "alicia", got.Username)
		require.NotNil(t, got.Birthday)
	})

	stored, err := f.mgr.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", stored.Username)
}

func TestManager_UpdateProfile_NoChangeSkipsWrite(t *testing.T) {
	store := mocks.NewMockStore(t)
	auth := mocks.NewMockAuthorizer(t)
	mgr, err := account.NewManager(store, newMockHasher(t), auth)
	require.NoError(t, err)

	current := &account.Account{ID: ulid.Make(), Username: "same"}
	auth.On("AuthorizeForAccount", mock.Anything, "tok", current.ID).Return(nil)
	store.On("GetByID", mock.Anything, current.ID).Return(current, nil)

	got, err := mgr.UpdateProfile(context.Background(), current.ID, account.ProfileUpdate{Username: strPtr("same")}, "tok")
	require.NoError(t, err)
	assert.Same(t, current, got)
	store.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_UpdateProfile_AuthorizesFirst(t *testing.T) {
	store := mocks.NewMockStore(t)
	auth := mocks.NewMockAuthorizer(t)
	mgr, err := account.NewManager(store, newMockHasher(t), auth)
	require.NoError(t, err)

	id := ulid.Make()
	auth.On("AuthorizeForAccount", mock.Anything, "", id).
		Return(oops.Wrap(account.ErrUnauthorized))

	_, err = mgr.UpdateProfile(context.Background(), id, account.ProfileUpdate{Username: strPtr("x")}, "")
	assert.ErrorIs(t, err, account.ErrUnauthorized)
	store.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestManager_ChangeStatus(t *testing.T) {
	f := newManager(t)
	ctx := context.Background()
	acct, _, err := f.mgr.CreateAccount(ctx, "alice", "pw")
	require.NoError(t, err)

	got, err := f.mgr.ChangeStatus(ctx, acct.ID, account.StatusOnline)
	require.NoError(t, err)
	assert.Equal(t, account.StatusOnline, got.Status)

	_, err = f.mgr.ChangeStatus(ctx, acct.ID, account.Status("AWAY"))
	errutil.AssertErrorKind(t, err, account.ErrBadRequest, "ACCOUNT_INVALID_STATUS")

	_, err = f.mgr.ChangeStatus(ctx, ulid.Make(), account.StatusOffline)
	errutil.AssertErrorKind(t, err, account.ErrNotFound, "ACCOUNT_NOT_FOUND")
}
