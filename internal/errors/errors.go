// Package errors provides coded domain errors for the coversync engine.
//
// Usage:
//
//	// In pipeline stages - return typed errors
//	if res.Outcome == domain.OutcomeAmbiguous {
//	    return errors.AmbiguousMatchf("%d candidates for %q", len(res.Candidates), ref.Title)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrMutationConflict) {
//	    // retry on the next pass
//	}
//
//	// Or switch on the Code directly
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeParse:
//	        registry.Record(ref, domainErr.Message)
//	    case errors.CodeCatalogRefresh:
//	        // keep the previous snapshot
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeParse            Code = "PARSE_ERROR"
	CodeLookupFailure    Code = "LOOKUP_FAILURE"
	CodeAmbiguousMatch   Code = "AMBIGUOUS_MATCH"
	CodeMutationConflict Code = "MUTATION_CONFLICT"
	CodeCatalogRefresh   Code = "CATALOG_REFRESH_FAILURE"
	CodeHistoryRecord    Code = "HISTORY_RECORD_FAILURE"
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidation       Code = "VALIDATION"
	CodeConflict         Code = "CONFLICT"
	CodeForbidden        Code = "FORBIDDEN"
	CodeBusy             Code = "BUSY"
	CodeInternal         Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeBusy, CodeMutationConflict, CodeAmbiguousMatch:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation, CodeParse:
		return http.StatusBadRequest
	case CodeLookupFailure, CodeCatalogRefresh:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrParse            = &Error{Code: CodeParse, Message: "unparseable file name"}
	ErrLookupFailure    = &Error{Code: CodeLookupFailure, Message: "title lookup failed"}
	ErrAmbiguousMatch   = &Error{Code: CodeAmbiguousMatch, Message: "ambiguous match"}
	ErrMutationConflict = &Error{Code: CodeMutationConflict, Message: "destination is being modified"}
	ErrCatalogRefresh   = &Error{Code: CodeCatalogRefresh, Message: "catalog refresh failed"}
	ErrHistoryRecord    = &Error{Code: CodeHistoryRecord, Message: "history record not saved"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict         = &Error{Code: CodeConflict, Message: "conflict"}
	ErrForbidden        = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrBusy             = &Error{Code: CodeBusy, Message: "busy"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

// CodeOf returns the code of err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Constructor functions for creating errors with custom messages.

// Parse creates a parse error.
func Parse(msg string) *Error {
	return &Error{Code: CodeParse, Message: msg}
}

// Parsef creates a parse error with formatted message.
func Parsef(format string, args ...any) *Error {
	return &Error{Code: CodeParse, Message: fmt.Sprintf(format, args...)}
}

// LookupFailure creates a lookup failure error.
func LookupFailure(msg string) *Error {
	return &Error{Code: CodeLookupFailure, Message: msg}
}

// AmbiguousMatchf creates an ambiguous match error with formatted message.
func AmbiguousMatchf(format string, args ...any) *Error {
	return &Error{Code: CodeAmbiguousMatch, Message: fmt.Sprintf(format, args...)}
}

// MutationConflictf creates a mutation conflict error with formatted message.
func MutationConflictf(format string, args ...any) *Error {
	return &Error{Code: CodeMutationConflict, Message: fmt.Sprintf(format, args...)}
}

// CatalogRefresh creates a catalog refresh failure.
func CatalogRefresh(msg string) *Error {
	return &Error{Code: CodeCatalogRefresh, Message: msg}
}

// HistoryRecordf creates a history record failure with formatted message.
func HistoryRecordf(format string, args ...any) *Error {
	return &Error{Code: CodeHistoryRecord, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Busy creates a busy error.
func Busy(msg string) *Error {
	return &Error{Code: CodeBusy, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
