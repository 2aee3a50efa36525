// Package apperr defines the error kind taxonomy shared by every component,
// so the dispatch layer can map any returned error to an HTTP status and a
// safe user-facing message without each handler hand-rolling status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error the way spec §7 enumerates them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthRequired  Kind = "auth_required"
	KindNotFound      Kind = "not_found"
	KindMisconfigured Kind = "misconfigured"
	KindUpstream      Kind = "upstream"
	KindGuardrail     Kind = "guardrail_blocked"
	KindTransient     Kind = "transient"
)

// Error is the single error type every component returns for business-rule
// failures. Unexpected/programmer errors are left as plain errors and are
// mapped to 500 by the dispatch layer's default case.
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

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code associated with the error's kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindMisconfigured:
		return http.StatusInternalServerError
	case KindUpstream:
		return http.StatusBadGateway
	case KindGuardrail:
		return http.StatusBadGateway
	case KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func new(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error         { return new(KindValidation, message, nil) }
func Validationf(message string, err error) *Error { return new(KindValidation, message, err) }
func AuthRequired(message string) *Error       { return new(KindAuthRequired, message, nil) }
func NotFound(message string) *Error           { return new(KindNotFound, message, nil) }
func Misconfigured(message string) *Error      { return new(KindMisconfigured, message, nil) }
func Upstream(message string, err error) *Error { return new(KindUpstream, message, err) }
func Guardrail(message string) *Error          { return new(KindGuardrail, message, nil) }
func Transient(message string, err error) *Error { return new(KindTransient, message, err) }

// Is reports whether err (or something it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// StatusFor maps any error to an HTTP status, defaulting to 500.
func StatusFor(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status()
	}
	return http.StatusInternalServerError
}
