// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes account and session operations over HTTP.
package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger *slog.Logger
	// Observer receives request metrics. Optional.
	Observer HTTPObserver
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string
}

// NewRouter builds the HTTP API:
//
//	POST   /users       register
//	GET    /users       list accounts (any valid token)
//	GET    /users/{id}  get account (any valid token)
//	PUT    /users/{id}  update own profile
//	POST   /session     log in
//	DELETE /session     log out
func NewRouter(accounts Accounts, auth Authenticator, opts RouterOptions) (http.Handler, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts is required")
	}
	if auth == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{accounts: accounts, auth: auth, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing)
	r.Use(requestLogger(logger, opts.Observer))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", AuthTokenHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, logger, oops.Code("ROUTE_NOT_FOUND").Wrapf(account.ErrNotFound, "no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusMethodNotAllowed, ErrorResponse{
			Error:     http.StatusText(http.StatusMethodNotAllowed),
			Code:      "METHOD_NOT_ALLOWED",
			RequestID: middleware.GetReqID(r.Context()),
		})
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.createAccount)
		r.Get("/", h.listAccounts)
		r.Get("/{id}", h.getAccount)
		r.Put("/{id}", h.updateProfile)
	})
	r.Route("/session", func(r chi.Router) {
		r.Post("/", h.login)
		r.Delete("/", h.logout)
	})

	return r, nil
}
