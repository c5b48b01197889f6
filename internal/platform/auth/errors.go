package auth

import (
	"errors"
	"net/http"
)

// Code identifies an authentication failure. Codes are stable and returned to
// clients so they can distinguish "re-authenticate" from "re-request".
type Code string

const (
	CodeMissingEmail       Code = "missing_email"
	CodeUserNotFound       Code = "user_not_found"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeUnconfirmedAccount Code = "unconfirmed_account"
	CodeInactiveAccount    Code = "inactive_account"
	CodeInvalidToken       Code = "invalid_token"
	CodeTokenExpired       Code = "token_expired"
	CodeIntegrity          Code = "integrity_error"
)

// Error is a terminal authentication failure. Any Error raised while
// dispatching aborts the request with no partial identity attached; retrying
// is solely a client decision.
type Error struct {
	Code    Code   `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// HTTPStatus maps the failure to its response status. Everything is a 401
// except role-resolution inconsistencies, which are server-side data
// corruption rather than a client mistake.
func (e *Error) HTTPStatus() int {
	if e.Code == CodeIntegrity {
		return http.StatusInternalServerError
	}
	return http.StatusUnauthorized
}

var (
	ErrMissingEmail       = &Error{CodeMissingEmail, "no email address provided"}
	ErrUserNotFound       = &Error{CodeUserNotFound, "no user matching the provided email found"}
	ErrInvalidCredentials = &Error{CodeInvalidCredentials, "password could not be verified"}
	ErrUnconfirmedAccount = &Error{CodeUnconfirmedAccount, "user account is unconfirmed"}
	ErrInactiveAccount    = &Error{CodeInactiveAccount, "user account is inactive"}
	ErrInvalidToken       = &Error{CodeInvalidToken, "token is invalid"}
	ErrTokenExpired       = &Error{CodeTokenExpired, "authentication token expired"}
	ErrIntegrity          = &Error{CodeIntegrity, "identity could not be resolved"}
)

// AsError unwraps err into an authentication *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
