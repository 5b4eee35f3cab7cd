// Package apperr is the error taxonomy shared by the services and the HTTP
// layer. Every failure that reaches a caller is an *Error with a Kind that
// maps to a status code and a stable error code.
package apperr

import (
	"errors"
	"net/http"

	"vidtube/internal/constants"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindInvalidCredentials
	KindNotFound
	KindTokenInvalid
	KindExpired
	KindTokenStale
	KindUnauthorized
	KindUpstream
)

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInvalidCredentials, KindTokenInvalid, KindExpired, KindTokenStale, KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return constants.ErrCodeInvalidRequest
	case KindConflict:
		return constants.ErrCodeConflict
	case KindInvalidCredentials:
		return constants.ErrCodeInvalidCredentials
	case KindNotFound:
		return constants.ErrCodeNotFound
	case KindTokenInvalid:
		return constants.ErrCodeTokenInvalid
	case KindExpired:
		return constants.ErrCodeTokenExpired
	case KindTokenStale:
		return constants.ErrCodeTokenUsed
	case KindUnauthorized:
		return constants.ErrCodeUnauthorized
	case KindUpstream:
		return constants.ErrCodeUpstreamFailure
	default:
		return constants.ErrCodeInternal
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotFound:
		return "not_found"
	case KindTokenInvalid:
		return "token_invalid"
	case KindExpired:
		return "expired"
	case KindTokenStale:
		return "token_stale"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Status() int {
	return e.Kind.Status()
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Internal wraps an unexpected failure. The message shown to callers stays generic.
func Internal(err error) *Error {
	return Wrap(KindInternal, "An internal error occurred", err)
}

// KindOf reports the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain. Errors of any other type are
// wrapped as KindInternal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
