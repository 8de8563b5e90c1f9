// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/pkg/errutil"
)

// maxBodyBytes caps request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

// writeJSON encodes data with the given status. 204 writes no body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to marshal response",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.DebugContext(r.Context(), "failed to write response body",
			"error", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes an ErrorResponse. Internal failures
// are logged and their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error:     clientMessage(err),
		Code:      errutil.Code(err),
		RequestID: middleware.GetReqID(r.Context()),
	}

	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, slog.LevelError, "request failed", err)
		resp.Error = http.StatusText(http.StatusInternalServerError)
		resp.Code = "INTERNAL"
	}
	writeJSON(w, r, status, resp)
}

// errorKinds are the classification sentinels; their text is not shown to
// clients.
var errorKinds = []error{
	account.ErrBadRequest,
	account.ErrUnauthorized,
	account.ErrNotFound,
	account.ErrConflict,
}

// clientMessage returns the error text without the trailing kind sentinel,
// e.g. "invalid bearer token" rather than "invalid bearer token: unauthorized".
func clientMessage(err error) string {
	msg := err.Error()
	for _, kind := range errorKinds {
		if trimmed, ok := strings.CutSuffix(msg, ": "+kind.Error()); ok {
			return trimmed
		}
	}
	return msg
}

// decodeJSONBody decodes a single JSON object into dst, rejecting unknown
// fields, trailing data, and bodies over maxBodyBytes.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return badBody(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return oops.Code("INVALID_BODY").Wrapf(account.ErrBadRequest, "body must contain a single JSON object")
	}
	return nil
}

func badBody(err error) error {
	if errors.Is(err, account.ErrBadRequest) {
		return err
	}

	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	b := oops.Code("INVALID_BODY")
	switch {
	case errors.As(err, &syntaxErr):
		return b.With("offset", syntaxErr.Offset).
			Wrapf(account.ErrBadRequest, "body contains badly-formed JSON (at character %d)", syntaxErr.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return b.Wrapf(account.ErrBadRequest, "body contains badly-formed JSON")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return b.With("field", typeErr.Field).
				Wrapf(account.ErrBadRequest, "body contains incorrect JSON type for field %q", typeErr.Field)
		}
		return b.Wrapf(account.ErrBadRequest, "body contains incorrect JSON type (at character %d)", typeErr.Offset)
	case errors.Is(err, io.EOF):
		return b.Wrapf(account.ErrBadRequest, "body must not be empty")
	case errors.As(err, &maxBytesErr):
		return oops.Code("BODY_TOO_LARGE").
			Wrapf(account.ErrBadRequest, "body must not be larger than %d bytes", maxBytesErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return b.With("field", field).Wrapf(account.ErrBadRequest, "body contains unknown key %q", field)
	default:
		return b.Wrapf(account.ErrBadRequest, "body could not be decoded")
	}
}

// bearerToken reads the token from Auth-Token, falling back to an
// "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(AuthTokenHeader)); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
