package models

import (
	"errors"
	"fmt"
)

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError `json:"response"`
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// ErrorCode is the stable code string carried by every surfaced error
type ErrorCode string

// Error taxonomy
const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeDedupConflict       ErrorCode = "DEDUP_CONFLICT"
	CodeAnalyzerUnavailable ErrorCode = "ANALYZER_UNAVAILABLE"
	CodeStoreConflict       ErrorCode = "STORE_CONFLICT"
	CodePermissionDenied    ErrorCode = "PERMISSION_DENIED"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	CodeInternal            ErrorCode = "INTERNAL"
)

// Error is a coded, caller-safe error
type Error struct {
	Code        ErrorCode
	Message     string
	DuplicateOf string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons
var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrDedupConflict     = &Error{Code: CodeDedupConflict, Message: "duplicate report"}
	ErrStoreConflict     = &Error{Code: CodeStoreConflict, Message: "report was modified concurrently"}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "report not found"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "transition not allowed"}
)

// NewError builds a coded error with a formatted message
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to an underlying error
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or INTERNAL
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ToMessageError converts any error into the caller-facing body; internal
// details of uncoded errors are not exposed.
func ToMessageError(err error) MessageError {
	var e *Error
	if errors.As(err, &e) {
		return MessageError{Code: string(e.Code), Message: e.Message, DuplicateOf: e.DuplicateOf}
	}
	return MessageError{Code: string(CodeInternal), Message: "internal error"}
}
