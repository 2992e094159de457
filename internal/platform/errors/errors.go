package errors

import stderrors "errors"

// Error is the application error type with a code and an optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Caller-facing message
	Field   string // Offending input field, when known
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
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

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Invalid creates an INVALID_ARGUMENT error naming the offending field.
func Invalid(field, message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message, Field: field}
}

// Wrap creates a coded error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels usable with errors.Is to test for a code.
var (
	ErrProtocol        = New(CodeProtocol, "protocol error")
	ErrNotFound        = New(CodeNotFound, "not found")
	ErrConflict        = New(CodeConflict, "conflict")
	ErrForbidden       = New(CodeForbidden, "forbidden")
	ErrUnauthenticated = New(CodeUnauthenticated, "unauthenticated")
	ErrTransport       = New(CodeTransport, "transport failure")
)

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}
