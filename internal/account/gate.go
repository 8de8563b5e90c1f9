// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Authorizer checks that a bearer token is allowed to act on an account.
type Authorizer interface {
	AuthorizeForAccount(ctx context.Context, token string, targetID ulid.ULID) error
}

// Gate resolves bearer tokens and enforces ownership.
// It only reads from the store.
type Gate struct {
	store    Store
	recorder Recorder
}

// NewGate creates a new Gate. A nil recorder disables metrics.
func NewGate(store Store, recorder Recorder) (*Gate, error) {
	if store == nil {
		return nil, oops.Errorf("account store is required")
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Gate{store: store, recorder: recorder}, nil
}

// AuthenticateBearer returns the ID of the account holding token.
func (g *Gate) AuthenticateBearer(ctx context.Context, token string) (ulid.ULID, error) {
	id, err := g.resolve(ctx, token)
	g.record("authenticate", err)
	return id, err
}

// AuthorizeForAccount succeeds only when token belongs to targetID.
func (g *Gate) AuthorizeForAccount(ctx context.Context, token string, targetID ulid.ULID) error {
	id, err := g.resolve(ctx, token)
	if err == nil && id != targetID {
		err = oops.Code("AUTH_NOT_OWNER").
			With("target_id", targetID.String()).
			Wrapf(ErrUnauthorized, "token does not belong to the target account")
	}
	g.record("authorize_account", err)
	return err
}

// AuthorizeAny succeeds for any live token.
func (g *Gate) AuthorizeAny(ctx context.Context, token string) error {
	_, err := g.resolve(ctx, token)
	g.record("authorize_any", err)
	return err
}

func (g *Gate) resolve(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("AUTH_TOKEN_MISSING").Wrapf(ErrUnauthorized, "bearer token is required")
	}

	tokenHash := HashToken(token)
	acct, err := g.store.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return ulid.ULID{}, oops.Code("AUTH_TOKEN_INVALID").Wrapf(ErrUnauthorized, "invalid bearer token")
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get account by token hash").
			Wrap(err)
	}
	if !VerifyToken(token, acct.TokenHash) {
		return ulid.ULID{}, oops.Code("AUTH_TOKEN_INVALID").Wrapf(ErrUnauthorized, "invalid bearer token")
	}
	return acct.ID, nil
}

func (g *Gate) record(operation string, err error) {
	switch {
	case err == nil:
		g.recorder.AuthDecision(operation, ResultAllowed)
	case errors.Is(err, ErrUnauthorized):
		g.recorder.AuthDecision(operation, ResultDenied)
	default:
		g.recorder.AuthDecision(operation, ResultError)
	}
}
