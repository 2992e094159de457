// Package errors provides coded application errors shared by the hub, the
// room directory, and the HTTP API.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified failure.
	CodeUnknown Code = "UNKNOWN"

	// CodeProtocol marks a malformed or out-of-order client event.
	CodeProtocol Code = "PROTOCOL"
	// CodeInvalidArgument marks rejected HTTP input.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeNotFound marks an absent room, user, or message.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict marks a duplicate room name or registration.
	CodeConflict Code = "CONFLICT"
	// CodeForbidden marks a wrong room secret or a privileged action by a
	// non-privileged caller.
	CodeForbidden Code = "FORBIDDEN"
	// CodeUnauthenticated marks a missing or invalid admin credential.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodeTransport marks a send to a dead connection.
	CodeTransport Code = "TRANSPORT"
	// CodeUnavailable marks a failing external collaborator.
	CodeUnavailable Code = "UNAVAILABLE"
)

// HTTPStatus maps the code to the status written by HTTP handlers.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeProtocol, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
