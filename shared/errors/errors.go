package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// Constructors for the recoverable outcomes the auth core returns.
// Anything not covered here propagates as a plain error and surfaces as 500.

func Validation(msg string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: msg, StatusCode: http.StatusBadRequest}
}

func Validationf(format string, args ...any) *ErrorWithStatusCode {
	return Validation(fmt.Sprintf(format, args...))
}

func Conflict(msg string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: msg, StatusCode: http.StatusConflict}
}

func NotFound(msg string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: msg, StatusCode: http.StatusNotFound}
}

func Unauthorized(msg string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: msg, StatusCode: http.StatusUnauthorized}
}

// InvalidCredentials is returned for both "user not found" and "wrong password"
// so the response shape never reveals whether an email is registered.
func InvalidCredentials() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Invalid credentials", StatusCode: http.StatusUnauthorized}
}

func InvalidOTP() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Invalid or expired one-time code", StatusCode: http.StatusUnauthorized}
}

func InvalidRefreshToken() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Invalid refresh token", StatusCode: http.StatusUnauthorized}
}

func InvalidOrExpiredToken() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Invalid or expired token", StatusCode: http.StatusBadRequest}
}

func AccountLocked(retryAfterSeconds int) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		Message:    fmt.Sprintf("Account temporarily locked. Retry after %ds", retryAfterSeconds),
		StatusCode: http.StatusForbidden,
	}
}

func AccountDeactivated() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Account deactivated", StatusCode: http.StatusForbidden}
}

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// StatusCode returns the HTTP status attached to err, or 500 for plain errors.
func StatusCode(err error) int {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}
