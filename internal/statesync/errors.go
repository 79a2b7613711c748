package statesync

import "errors"

// Domain-specific errors for the synchronizer.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidCommand is returned when a command is rejected before any
	// side effect: unknown device, action not valid for the device's kind,
	// or malformed parameters.
	ErrInvalidCommand = errors.New("statesync: invalid command")

	// ErrClosed is returned when issuing commands through a dispatcher
	// that has been closed.
	ErrClosed = errors.New("statesync: dispatcher closed")
)
