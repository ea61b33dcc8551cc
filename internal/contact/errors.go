package contact

import (
	"context"
	"errors"
	"fmt"
)

// Code categorizes domain errors. Every failure surfaced by the engine,
// the pairing transaction and the remote backends carries one of these.
type Code string

const (
	// CodeNotFound indicates the addressed record or user does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeAlreadyExists indicates a relationship with the counterpart already exists.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodeUnauthenticated indicates there is no signed-in owner.
	CodeUnauthenticated Code = "UNAUTHENTICATED"

	// CodeTransientNetwork indicates the remote did not answer within bounded time
	// or the connection failed. Retrying may succeed.
	CodeTransientNetwork Code = "TRANSIENT_NETWORK"

	// CodePartialTransaction indicates one half of a two-sided write failed.
	// The successful half has been compensated (or compensation was attempted).
	CodePartialTransaction Code = "PARTIAL_TRANSACTION"

	// CodeValidation indicates the request was rejected before any remote call.
	CodeValidation Code = "VALIDATION"
)

// Error is a typed domain error.
//
// Error includes structured fields for diagnostics and for mapping to
// user-facing messages.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed (e.g. "send_ping").
	Op string

	// ID identifies the affected counterpart, if any.
	ID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.Op != "" && e.ID != "":
		return fmt.Sprintf("%s: %s (op=%s, id=%s)", e.Code, msg, e.Op, e.ID)
	case e.Op != "":
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, msg, e.Op)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

// IsAlreadyExists reports whether err is an ALREADY_EXISTS error.
func IsAlreadyExists(err error) bool { return IsCode(err, CodeAlreadyExists) }

// IsTransient reports whether err is a TRANSIENT_NETWORK error.
func IsTransient(err error) bool { return IsCode(err, CodeTransientNetwork) }

// NewNotFound creates a NOT_FOUND error for the given id.
func NewNotFound(op, id string) *Error {
	return &Error{Code: CodeNotFound, Op: op, ID: id, Message: "no such record"}
}

// NewAlreadyExists creates an ALREADY_EXISTS error for the given id.
func NewAlreadyExists(op, id string) *Error {
	return &Error{Code: CodeAlreadyExists, Op: op, ID: id, Message: "relationship already exists"}
}

// NewUnauthenticated creates an UNAUTHENTICATED error.
func NewUnauthenticated(op string) *Error {
	return &Error{Code: CodeUnauthenticated, Op: op, Message: "no signed-in user"}
}

// NewValidation creates a VALIDATION error.
func NewValidation(op, id, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Op: op, ID: id, Message: fmt.Sprintf(format, args...)}
}

// NewTransient wraps a transport failure as TRANSIENT_NETWORK.
func NewTransient(op string, err error) *Error {
	return &Error{Code: CodeTransientNetwork, Op: op, Message: "remote unavailable", Err: err}
}

// NewPartial wraps the failure of one half of a two-sided write.
func NewPartial(op, id string, err error) *Error {
	return &Error{Code: CodePartialTransaction, Op: op, ID: id, Message: "relationship write partially failed", Err: err}
}

// Classify converts an arbitrary failure into a domain error.
//
// Errors that already carry a code are returned unchanged. Context deadline
// and cancellation, like any untyped transport failure, become
// TRANSIENT_NETWORK so callers can surface "no response within bounded time".
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTransientNetwork, Op: op, Message: "no response within bounded time", Err: err}
	}
	return NewTransient(op, err)
}
