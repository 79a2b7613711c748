package device

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownDevice is returned when a device name is not in the catalogue.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrInvalidAction is returned when an action is not valid for a device kind.
	ErrInvalidAction = errors.New("device: invalid action")

	// ErrNotFound is returned when a device state row does not exist.
	ErrNotFound = errors.New("device: state not found")
)
