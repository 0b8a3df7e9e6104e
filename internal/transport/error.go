package transport

import (
	"fmt"
	"net/http"
)

// ErrorKind is the coarse failure category every policy decision keys on.
// No other component derives a category from status codes; this package is
// the single source of truth.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuthentication ErrorKind = "authentication"
	KindValidation     ErrorKind = "validation"
	KindRateLimited    ErrorKind = "rate_limited"
	KindServerFault    ErrorKind = "server_fault"
	KindUnknown        ErrorKind = "unknown"
)

// Error is the single error value produced for every failed call.
type Error struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 when the request never reached the server
	Message string // raw server-supplied message when present

	// Local is true when the call was rejected before any network I/O,
	// e.g. a protected endpoint attempted without a valid session.
	Local bool
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s [%d]: %s", e.Kind, e.Status, e.Message)
}

// classify maps an HTTP status to an ErrorKind.
func classify(status int) ErrorKind {
	switch {
	case status == 0:
		return KindNetwork
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerFault
	default:
		return KindUnknown
	}
}

// authenticationRequired is the pre-network rejection for protected endpoints
// called without a valid session.
func authenticationRequired() *Error {
	return &Error{
		Kind:    KindAuthentication,
		Message: "a valid session is required for this call",
		Local:   true,
	}
}

// IsAuthenticationRequired reports whether err is the pre-network rejection
// produced when a protected endpoint is called without a valid session.
func IsAuthenticationRequired(err error) bool {
	te, ok := err.(*Error)
	return ok && te.Local && te.Kind == KindAuthentication
}
