// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/identity/internal/account"
)

// DateLayout is the wire format of calendar dates (dd.MM.yyyy).
const DateLayout = "02.01.2006"

// Date is a calendar date encoded as "dd.MM.yyyy".
type Date struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves d unchanged.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return oops.Code("INVALID_DATE").Wrapf(account.ErrBadRequest, "date must be a string in dd.MM.yyyy format")
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return oops.Code("INVALID_DATE").
			With("value", s).
			Wrapf(account.ErrBadRequest, "date %q must use dd.MM.yyyy format", s)
	}
	d.Time = t
	return nil
}

// credentialsRequest is the body of POST /users and POST /session.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// profileRequest is the body of PUT /users/{id}. Absent fields are left
// untouched.
type profileRequest struct {
	Username *string `json:"username"`
	Birthday *Date   `json:"birthday"`
}

func (p profileRequest) update() account.ProfileUpdate {
	u := account.ProfileUpdate{Username: p.Username}
	if p.Birthday != nil && !p.Birthday.IsZero() {
		b := p.Birthday.Time
		u.Birthday = &b
	}
	return u
}

// accountResponse is the public view of an account. The password hash is
// never part of it; the token only appears right after it is issued.
type accountResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Status       string `json:"status"`
	Birthday     *Date  `json:"birthday"`
	CreationDate Date   `json:"creationDate"`
	Token        string `json:"token,omitempty"`
}

func newAccountResponse(acct *account.Account, token string) accountResponse {
	resp := accountResponse{
		ID:           acct.ID.String(),
		Username:     acct.Username,
		Status:       string(acct.Status),
		CreationDate: Date{acct.CreationDate},
		Token:        token,
	}
	if acct.Birthday != nil {
		resp.Birthday = &Date{*acct.Birthday}
	}
	return resp
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
