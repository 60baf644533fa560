package nvs

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrNotMounted      = errors.New("nvs not mounted")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidKey      = errors.New("invalid key")
	ErrValueTooLarge   = errors.New("value too large")
	ErrNotFound        = errors.New("key not found")
	ErrNoSpace         = errors.New("no space left")
	ErrAllClosed       = errors.New("all sectors closed")
	ErrCorrupt         = errors.New("corrupt allocation table")
)

// Error provides structured error information for NVS operations.
type Error struct {
	Op      string  // Operation that failed (e.g., "write", "mount")
	Key     string  // Key involved, if any
	Addr    Address // Flash address involved, if HasAddr
	HasAddr bool
	Cause   error  // Underlying error
	Context string // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "nvs " + e.Op
	if e.Key != "" {
		msg += fmt.Sprintf(" key %q", e.Key)
	}
	if e.HasAddr {
		msg += " at " + e.Addr.String()
	}
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg + ": " + fmt.Sprint(e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error's cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building Errors.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new error builder for the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: Error{Op: op}}
}

// Key sets the key the operation was acting on.
func (b *ErrorBuilder) Key(key string) *ErrorBuilder {
	b.err.Key = key
	return b
}

// Addr sets the flash address the operation was acting on.
func (b *ErrorBuilder) Addr(a Address) *ErrorBuilder {
	b.err.Addr = a
	b.err.HasAddr = true
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

func flashError(op string, a Address, cause error) error {
	return NewError(op).Addr(a).Cause(cause).Err()
}

// IsNotFound reports whether err means the key has no live value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoSpace reports whether a write failed because every sector is full of live data.
func IsNoSpace(err error) bool {
	return errors.Is(err, ErrNoSpace)
}

// IsCorrupt reports whether mount found a layout it cannot recover from.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrAllClosed)
}

// IsNotMounted reports whether the store was used before a successful mount.
func IsNotMounted(err error) bool {
	return errors.Is(err, ErrNotMounted)
}
