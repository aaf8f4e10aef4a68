// Package apperr defines the typed failures returned by the booking services.
// Handlers translate a Kind into an HTTP status; services never deal with
// transport codes directly.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure independently of the transport.
type Kind string

const (
	Unauthenticated     Kind = "unauthenticated"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not-found"
	Conflict            Kind = "conflict"
	InvalidArgument     Kind = "invalid-argument"
	InsufficientBalance Kind = "insufficient-balance"
	ReservationExpired  Kind = "reservation-expired"
	SeatUnavailable     Kind = "seat-unavailable"
	IllegalState        Kind = "illegal-state"
)

// Error is a business failure. Code is the stable machine-readable code sent
// to clients (e.g. "invalid-token"); Message is human readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Wrap builds an Error that keeps err as its cause.
func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the Kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a failure to its response status. Untyped errors are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, IllegalState:
		return http.StatusConflict
	case InvalidArgument, InsufficientBalance, ReservationExpired, SeatUnavailable:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Frequently used failures.
var (
	ErrInvalidToken        = New(Unauthenticated, "invalid-token", "queue token is unknown or expired")
	ErrInactiveToken       = New(Forbidden, "inactive-token", "queue token is not active yet")
	ErrSeatNotFound        = New(NotFound, "seat-not-found", "seat does not exist")
	ErrReservationNotFound = New(NotFound, "reservation-not-found", "no held reservation for this seat")
	ErrReservationExpired  = New(ReservationExpired, "reservation-expired", "seat hold has expired")
	ErrInsufficientBalance = New(InsufficientBalance, "insufficient-balance", "balance is lower than the amount")
	ErrUserNotFound        = New(NotFound, "user-not-found", "no balance account for user")
	ErrInvalidAmount       = New(InvalidArgument, "invalid-amount", "amount must be positive")
	ErrLockNotAcquired     = New(Conflict, "lock-acquisition-failed", "resource is busy, try again")
)
