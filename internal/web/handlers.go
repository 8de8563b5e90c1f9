// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
)

// AuthTokenHeader carries the bearer token.
const AuthTokenHeader = "Auth-Token"

// Accounts is the account lifecycle used by the handlers.
// *account.Manager implements it.
type Accounts interface {
	CreateAccount(ctx context.Context, username, password string) (*account.Account, string, error)
	Authenticate(ctx context.Context, username, password string) (*account.Account, string, error)
	Logout(ctx context.Context, token string) (ulid.ULID, error)
	GetAccount(ctx context.Context, id ulid.ULID) (*account.Account, error)
	ListAccounts(ctx context.Context) ([]*account.Account, error)
	UpdateProfile(ctx context.Context, id ulid.ULID, update account.ProfileUpdate, requestorToken string) (*account.Account, error)
}

// Authenticator resolves bearer tokens. *account.Gate implements it.
type Authenticator interface {
	AuthenticateBearer(ctx context.Context, token string) (ulid.ULID, error)
	AuthorizeAny(ctx context.Context, token string) error
}

// handlers serves the account and session endpoints.
type handlers struct {
	accounts Accounts
	auth     Authenticator
	logger   *slog.Logger
}

// createAccount handles POST /users.
func (h *handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	acct, token, err := h.accounts.CreateAccount(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newAccountResponse(acct, token))
}

// login handles POST /session.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	acct, token, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newAccountResponse(acct, token))
}

// logout handles DELETE /session.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.accounts.Logout(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusNoContent, nil)
}

// listAccounts handles GET /users.
func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.AuthorizeAny(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	accts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := make([]accountResponse, 0, len(accts))
	for _, acct := range accts {
		out = append(out, newAccountResponse(acct, ""))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// getAccount handles GET /users/{id}.
func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.AuthorizeAny(r.Context(), bearerToken(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id, err := accountID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	acct, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newAccountResponse(acct, ""))
}

// updateProfile handles PUT /users/{id}. The caller must own the target
// account; that is settled before the id or body is inspected.
func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	callerID, err := h.auth.AuthenticateBearer(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	raw := chi.URLParam(r, "id")
	if id, err := ulid.ParseStrict(raw); err != nil || id != callerID {
		writeError(w, r, h.logger, oops.Code("AUTH_NOT_OWNER").
			With("target_id", raw).
			Wrapf(account.ErrUnauthorized, "token does not belong to the target account"))
		return
	}

	var req profileRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	acct, err := h.accounts.UpdateProfile(r.Context(), callerID, req.update(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newAccountResponse(acct, ""))
}

func accountID(r *http.Request) (ulid.ULID, error) {
	raw := chi.URLParam(r, "id")
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_ACCOUNT_ID").
			With("id", raw).
			Wrapf(account.ErrBadRequest, "malformed account id %q", raw)
	}
	return id, nil
}
