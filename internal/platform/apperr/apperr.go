// Package apperr is the error model shared by the book, user and loan
// services. Codes are wire-level: a service maps them to HTTP status and a
// client rebuilds the same error kind from a peer's error payload, so
// errors.As works across a network hop the same way it does in-process.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeNotFound             Code = "NOT_FOUND"
	CodeBookUnavailable      Code = "BOOK_UNAVAILABLE"
	CodeAlreadyReturned      Code = "ALREADY_RETURNED"
	CodeNotActive            Code = "NOT_ACTIVE"
	CodeMaxExtensionsReached Code = "MAX_EXTENSIONS_REACHED"
	CodeCompensationFailed   Code = "COMPENSATION_FAILED"
	CodeInconsistentState    Code = "INCONSISTENT_STATE"
	CodeUpstreamUnavailable  Code = "UPSTREAM_UNAVAILABLE"
	CodeConflict             Code = "CONFLICT"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeInternal             Code = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func ErrInvalid(msg string) *Error  { return &Error{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *Error { return &Error{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *Error { return &Error{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *Error { return &Error{Code: CodeInternal, Message: msg} }

func ErrBookUnavailable(msg string) *Error { return &Error{Code: CodeBookUnavailable, Message: msg} }
func ErrAlreadyReturned(msg string) *Error { return &Error{Code: CodeAlreadyReturned, Message: msg} }
func ErrNotActive(msg string) *Error       { return &Error{Code: CodeNotActive, Message: msg} }
func ErrMaxExtensions(msg string) *Error {
	return &Error{Code: CodeMaxExtensionsReached, Message: msg}
}
func ErrUnauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }

// ErrUpstream marks a collaborator call that errored or timed out. The
// cause is kept for logs, never for the wire.
func ErrUpstream(msg string, cause error) *Error {
	return &Error{Code: CodeUpstreamUnavailable, Message: msg, cause: cause}
}

// ErrCompensationFailed wraps both the error that triggered compensation
// and the error the compensating action itself produced.
func ErrCompensationFailed(original, compensation error) *Error {
	return &Error{
		Code:    CodeCompensationFailed,
		Message: fmt.Sprintf("compensation failed after %q", original),
		cause:   errors.Join(original, compensation),
	}
}

func ErrInconsistent(msg string, cause error) *Error {
	return &Error{Code: CodeInconsistentState, Message: msg, cause: cause}
}

// CodeOf extracts the code, CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBookUnavailable, CodeAlreadyReturned, CodeNotActive,
		CodeMaxExtensionsReached, CodeConflict:
		return http.StatusConflict
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Payload is the JSON error body every handler emits and every client
// decodes: {"error":{"code":"...","message":"..."}}.
type Payload struct {
	Error Error `json:"error"`
}

func ToPayload(err error) Payload {
	var e *Error
	if errors.As(err, &e) {
		return Payload{Error: Error{Code: e.Code, Message: e.Message}}
	}
	return Payload{Error: Error{Code: CodeInternal, Message: err.Error()}}
}

// FromWire rebuilds a typed error from a decoded peer payload.
func FromWire(p Payload) *Error {
	if p.Error.Code == "" {
		return ErrInternal("peer returned an unrecognized error body")
	}
	return &Error{Code: p.Error.Code, Message: p.Error.Message}
}
