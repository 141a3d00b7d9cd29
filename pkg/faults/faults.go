// Package faults defines the error kinds surfaced by the layout service.
// Callers branch on kinds with errors.Is; the client API maps them to
// structured failures.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown window or group id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidScope reports a scope or rule that violates the hierarchy.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrDisabled reports an operation refused because the window is
	// config-disabled.
	ErrDisabled = errors.New("disabled")
	// ErrRuntimeFailure reports a failed window-runtime command.
	ErrRuntimeFailure = errors.New("runtime failure")
	// ErrInvalidState reports an operation that conflicts with current group
	// membership, e.g. tabbing a window that is already tabbed elsewhere.
	ErrInvalidState = errors.New("invalid state")
	// ErrTimeout reports a runtime command that did not complete in time.
	ErrTimeout = errors.New("timeout")
)

// NotFound wraps ErrNotFound with the missing subject.
func NotFound(what string, id fmt.Stringer) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// InvalidScope wraps ErrInvalidScope with a reason.
func InvalidScope(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidScope)...)
}

// Disabled wraps ErrDisabled with the refusing subject.
func Disabled(what string, id fmt.Stringer) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrDisabled)
}

// RuntimeFailure wraps an adapter error as ErrRuntimeFailure.
func RuntimeFailure(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrRuntimeFailure)
}

// InvalidState wraps ErrInvalidState with a reason.
func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidState)...)
}

// Timeout wraps ErrTimeout with the operation that expired.
func Timeout(op string) error {
	return fmt.Errorf("%s: %w", op, ErrTimeout)
}

// Kind returns the stable name of the error's kind, or "internal" when the
// error carries none.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidScope):
		return "InvalidScope"
	case errors.Is(err, ErrDisabled):
		return "Disabled"
	case errors.Is(err, ErrRuntimeFailure):
		return "RuntimeFailure"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	default:
		return "internal"
	}
}
