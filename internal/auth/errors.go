package auth

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies every failure the auth service can return.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindInvalidCredentials
	KindAccountLocked
	KindConflict
	KindWeakPassword
	KindUnauthorized
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountLocked:
		return "account_locked"
	case KindConflict:
		return "conflict"
	case KindWeakPassword:
		return "weak_password"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the result type of every Service operation. Message is safe to
// show to clients for every kind except KindInternal.
type Error struct {
	Kind        Kind
	Message     string
	LockedUntil time.Time
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so errors.Is(err, ErrAccountLocked) works for any lock.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrBadRequest         = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountLocked      = &Error{Kind: KindAccountLocked, Message: "account temporarily locked"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "user already exists"}
	ErrWeakPassword       = &Error{Kind: KindWeakPassword, Message: "password is too weak"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal server error"}
)

// KindOf reports KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}

func badRequest(message string) error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func weakPassword(message string) error {
	return &Error{Kind: KindWeakPassword, Message: message}
}

func unauthorized(message string, cause error) error {
	return &Error{Kind: KindUnauthorized, Message: message, Err: cause}
}

func accountLocked(until time.Time) error {
	return &Error{
		Kind:        KindAccountLocked,
		Message:     fmt.Sprintf("account locked until %s", until.UTC().Format(time.RFC3339)),
		LockedUntil: until.UTC(),
	}
}

func internalError(operation string, cause error) error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: fmt.Errorf("%s: %w", operation, cause)}
}
