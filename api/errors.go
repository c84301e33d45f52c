// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error classification for busyhttp.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrWouldBlock is the non-blocking "not ready yet" signal. It is never a failure.
	ErrWouldBlock      = errors.New("operation would block")
	ErrConnClosed      = errors.New("connection closed by peer")
	ErrListenerClosed  = errors.New("listener is closed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotSupported    = errors.New("operation not supported")
	ErrRequestTooLarge = errors.New("request exceeds buffer capacity")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	// ErrCodeListener marks an unrecoverable accept failure.
	ErrCodeListener ErrorCode = iota + 1
	// ErrCodeConnection marks a connection failure under the abort policy.
	ErrCodeConnection
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error around cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsWouldBlock reports whether err is the would-block signal.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// IsClosed reports whether err means the peer went away.
func IsClosed(err error) bool {
	return errors.Is(err, ErrConnClosed)
}
