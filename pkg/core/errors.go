package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures in the call-assist subsystem.
type ErrorKind string

const (
	// ErrProtocolViolation is a malformed or unexpected handshake on a
	// gateway. The connection is closed with a specific close code; no retry.
	ErrProtocolViolation ErrorKind = "protocol_violation"
	// ErrUnknownSession is an operation referencing a session id not present
	// in the registry. Treated as a no-op or rejected attach, never a crash.
	ErrUnknownSession ErrorKind = "unknown_session"
	// ErrUpstreamFailure is a failed STT or telephony provider call.
	ErrUpstreamFailure ErrorKind = "upstream_failure"
	// ErrTransientFrame is a single malformed message or frame. Dropped; the
	// connection stays open.
	ErrTransientFrame ErrorKind = "transient_frame"
)

// Error is the domain error carried across component boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a domain error without a cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a domain error wrapping an underlying cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == kind
}
