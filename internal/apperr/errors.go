package apperr

import (
	"errors"
	"fmt"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context, e.g. the offending field
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates a domain error carrying metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation is shorthand for a field-scoped validation failure.
func Validation(field, message string) *Error {
	return WithMetadata(CodeValidation, message, map[string]string{"field": field})
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Sentinels usable with errors.Is.
var (
	ErrValidation          = New(CodeValidation, "validation failed")
	ErrNotFound            = New(CodeNotFound, "not found")
	ErrConflict            = New(CodeConflict, "conflict")
	ErrInsufficientFunds   = New(CodeInsufficientFunds, "insufficient funds")
	ErrEmissionCapExceeded = New(CodeEmissionCapExceeded, "emission cap exceeded")
	ErrSignatureInvalid    = New(CodeSignatureInvalid, "signature invalid")
	ErrClaimExpired        = New(CodeClaimExpired, "claim expired")
	ErrReplayedSeqno       = New(CodeReplayedSeqno, "seqno already consumed")
	ErrSenderMismatch      = New(CodeSenderMismatch, "sender is not the claim recipient")
	ErrStorageUnavailable  = New(CodeStorageUnavailable, "storage unavailable")
)
