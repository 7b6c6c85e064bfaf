// Package apperr defines the tagged outcomes returned by core operations and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindPrecondition Kind = "precondition_failed"
	KindInvalidState Kind = "invalid_state"
	KindPartial      Kind = "partial"
	KindStore        Kind = "store_error"
)

type Error struct {
	Kind    Kind
	Message string
	// Unit and Step identify how far a multi-step unit of work got before
	// failing. Only set for KindPartial.
	Unit string
	Step string
	// From and To carry the current and attempted state for KindInvalidState.
	From string
	To   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound is also returned for rows outside the caller's tenant scope, so
// callers cannot detect other tenants' records.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Precondition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(entity, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("cannot move %s from %s to %s", entity, from, to),
		From:    from,
		To:      to,
	}
}

func Partial(unit, step string, err error) *Error {
	return &Error{
		Kind:    KindPartial,
		Message: fmt.Sprintf("%s failed at step %q after earlier steps were applied", unit, step),
		Unit:    unit,
		Step:    step,
		Err:     err,
	}
}

// Store wraps an unexpected persistence failure. Errors that already carry a
// kind are returned unchanged.
func Store(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindStore, Message: "store error", Err: err}
}

// Prefix returns a copy of err with its message prefixed, keeping the kind.
func Prefix(prefix string, err error) error {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return Store(err)
	}
	out := *appErr
	out.Message = prefix + out.Message
	return &out
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if err == nil {
		return ""
	}
	return KindStore
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindPrecondition, KindInvalidState:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user-facing text for err. Store failures surface the
// underlying message so operators can remediate.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == KindStore || appErr.Kind == KindPartial {
			return appErr.Error()
		}
		return appErr.Message
	}
	return err.Error()
}
