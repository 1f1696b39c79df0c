// Package errors provides structured error handling for linewire with typed
// error kinds, wrapped causes, key-value details, and stack traces.
//
// Every failure in the client is reported through this package so callers can
// branch on the error kind rather than on message text:
//
//	err := sender.Flush(ctx, buf)
//	if errors.IsType(err, errors.ErrorTypeServerRejected) {
//	    // non-retryable: the server refused the payload
//	}
//
// Retryability is a property of the kind: connection, timeout, and
// server-busy errors may be retried by the HTTP flush loop; everything else
// is surfaced to the caller exactly once.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes a client failure.
type ErrorType string

const (
	// ErrorTypeInvalidName reports a table, symbol, or column name that is
	// empty, too long, or contains a forbidden character.
	ErrorTypeInvalidName ErrorType = "invalid_name"
	// ErrorTypeEncoding reports invalid UTF-8 input or a malformed array shape.
	ErrorTypeEncoding ErrorType = "encoding"
	// ErrorTypeState reports an API call made in the wrong order, such as a
	// symbol written after a typed column.
	ErrorTypeState ErrorType = "state"
	// ErrorTypeAuth reports a failed challenge-response exchange or bad key
	// material.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeConnection reports a connect, TLS handshake, or socket failure.
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTimeout reports a connect or flush that exceeded its deadline.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeServerBusy reports a retryable HTTP response (429 or 5xx).
	ErrorTypeServerBusy ErrorType = "server_busy"
	// ErrorTypeServerRejected reports a non-retryable HTTP 4xx with the
	// server's own message attached.
	ErrorTypeServerRejected ErrorType = "server_rejected"
	// ErrorTypeFlushFailed reports a flush whose retry budget was exhausted.
	ErrorTypeFlushFailed ErrorType = "flush_failed"
	// ErrorTypeConnectionClosed reports an operation attempted after a fatal
	// streaming error closed the sender.
	ErrorTypeConnectionClosed ErrorType = "connection_closed"
	// ErrorTypeConcurrentUse reports two flushes racing on the same sender.
	ErrorTypeConcurrentUse ErrorType = "concurrent_use"
	// ErrorTypeConfig reports invalid sender configuration.
	ErrorTypeConfig ErrorType = "config"
)

// Error is a structured error with a kind, optional cause, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame captured at error creation.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a kind and message, preserving it as the cause. The
// stack of an already-structured error is kept. Returns nil for a nil err.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether err is a structured error of the given kind.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the kind of a structured error, or "" for any other error.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// IsRetryable reports whether the HTTP flush loop may retry after err.
// Connection, timeout, and server-busy failures are transient; every other
// kind is terminal for the attempt.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeServerBusy:
		return true
	default:
		return false
	}
}

// captureStack records up to maxFrames frames above skip.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
