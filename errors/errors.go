// Package errors provides error handling for agentd.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection and marking
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the job dispatch taxonomy. Use these with errors.Is()
// for type-safe error checking, and errors.Wrap() to add context while
// preserving the type.
var (
	// ErrNotFound indicates the referenced job does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a state transition was attempted from an
	// unexpected current state (a race or a duplicate report)
	ErrConflict = New("state conflict")

	// ErrInvalidDependency indicates a wait registration referenced an
	// unknown job or would create a dependency cycle
	ErrInvalidDependency = New("invalid dependency")

	// ErrTimeout indicates the watchdog forced a stuck job to failure
	ErrTimeout = New("operation timed out")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict checks if an error is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsInvalidDependency checks if an error is or wraps ErrInvalidDependency
func IsInvalidDependency(err error) bool {
	return err != nil && Is(err, ErrInvalidDependency)
}

// NewNotFound creates a not-found error with a formatted message
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidDependency creates an invalid-dependency error with a formatted message
func NewInvalidDependency(format string, args ...interface{}) error {
	return Wrap(ErrInvalidDependency, Newf(format, args...).Error())
}
