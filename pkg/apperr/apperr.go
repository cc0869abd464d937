// Package apperr defines the typed error taxonomy shared by every
// LlamaFarm core package: Config, Transport, Handler, Dependency,
// Timeout, Revoked, NotFound, and AlreadyExists errors, each carrying a
// short code, a human-readable message, and an optional recovery list
// of shell commands the CLI prints verbatim.
package apperr

import (
	"errors"
	"fmt"
)

// Code is the short, stable enum surfaced to CLI/API clients.
type Code string

const (
	CodeConfig       Code = "config_error"
	CodeTransport    Code = "transport_error"
	CodeHandler      Code = "handler_error"
	CodeDependency   Code = "dependency_error"
	CodeTimeout      Code = "timeout"
	CodeRevoked      Code = "revoked"
	CodeNotFound     Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeBadTransition Code = "bad_transition"
)

// Error is the taxonomy's single concrete type. Every constructor
// below returns one of these; callers distinguish kinds with Is or by
// comparing Code.
type Error struct {
	Code     Code
	Message  string
	Recovery []string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithRecovery attaches shell-command recovery hints. The CLI renders
// them verbatim, one per line.
func (e *Error) WithRecovery(cmds ...string) *Error {
	e.Recovery = append(e.Recovery, cmds...)
	return e
}

func newErr(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// ConfigError wraps a malformed manifest, unknown strategy, or missing
// referenced database. Never caught internally; surfaced at CLI exit.
func ConfigError(message string, cause error) *Error {
	return newErr(CodeConfig, message, cause)
}

// TransportError wraps a broker-queue or result-store I/O failure. The
// broker retries a failed queue write with bounded backoff before
// returning one.
func TransportError(message string, cause error) *Error {
	return newErr(CodeTransport, message, cause)
}

// HandlerError wraps a panic or error from inside a registered task
// handler, captured with its traceback and written to the Task Record.
func HandlerError(message string, cause error) *Error {
	return newErr(CodeHandler, message, cause)
}

// DependencyError wraps an unreachable embedder, vector store, or
// Universal Runtime. The call that failed is not retried.
func DependencyError(message string, cause error) *Error {
	return newErr(CodeDependency, message, cause)
}

var (
	// ErrTimeout is returned by a polling wrapper past its deadline.
	ErrTimeout = &Error{Code: CodeTimeout, Message: "timed out waiting for completion"}

	// ErrRevoked is the terminal state distinct from FAILURE, reported
	// by poll wrappers so callers can tell cancellation from failure.
	ErrRevoked = &Error{Code: CodeRevoked, Message: "task was revoked"}

	// ErrNotFound is returned by Get/poll on an unknown task_id, and by
	// the Result Store for corrupt (truncated/unparseable) records.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "not found"}

	// ErrAlreadyExists is returned by put_pending when task_id is
	// already present.
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists, Message: "already exists"}

	// ErrBadTransition is returned when a Result Store call would
	// violate the Task Record state machine (§3).
	ErrBadTransition = &Error{Code: CodeBadTransition, Message: "invalid state transition"}
)

// Is lets errors.Is match by Code rather than by pointer identity, so
// wrapped sentinel errors (e.g. fmt.Errorf("...: %w", apperr.ErrTimeout))
// still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// As is a thin convenience wrapper over errors.As for callers that
// want the concrete *Error to read its Code/Recovery.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
