package jsruntime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	KindEngineInit     ErrorKind = "engine_init"
	KindInvalidState   ErrorKind = "invalid_state"
	KindScript         ErrorKind = "script"
	KindCompile        ErrorKind = "compile"
	KindBytecode       ErrorKind = "bytecode"
	KindLookup         ErrorKind = "lookup"
	KindJobLimit       ErrorKind = "job_limit"
	KindSourceNotFound ErrorKind = "source_not_found"
)

// Sentinels for errors.Is; an *Error matches the sentinel of its Kind.
var (
	ErrEngineInit     = &Error{Kind: KindEngineInit}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrScript         = &Error{Kind: KindScript}
	ErrCompile        = &Error{Kind: KindCompile}
	ErrBytecode       = &Error{Kind: KindBytecode}
	ErrLookup         = &Error{Kind: KindLookup}
	ErrJobLimit       = &Error{Kind: KindJobLimit}
	ErrSourceNotFound = &Error{Kind: KindSourceNotFound}
)

// Error is the discriminated failure returned by every Session operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Stack   string
	Cause   error
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapError converts a binding failure into a session error of the given kind,
// keeping the script message and stack when the cause is an engine exception.
func wrapError(kind ErrorKind, op string, cause error) *Error {
	e := &Error{Kind: kind, Message: op, Cause: cause}
	var exc *Exception
	if errors.As(cause, &exc) {
		e.Message = exc.Message
		e.Stack = exc.Stack
	} else if cause != nil {
		e.Message = op + ": " + cause.Error()
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error with the same Kind, so callers can test against the
// package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err, or "" when err is not a session error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err means the session can no longer be used.
func IsFatal(err error) bool {
	return KindOf(err) == KindEngineInit
}

// Exception is how bindings report a thrown JavaScript value.
type Exception struct {
	Message string
	Stack   string
}

func (e *Exception) Error() string {
	if e.Stack != "" {
		return e.Message + "\n" + e.Stack
	}
	return e.Message
}
