package gateway

import "errors"

var (
	// ErrTransport indicates the request produced no usable answer: a
	// network failure, a malformed body, or a 5xx from a backend that
	// died mid-request. The command may or may not have been applied;
	// fallback reconciliation resolves the ambiguity.
	ErrTransport = errors.New("gateway: transport failure")

	// ErrBackendRejected indicates the backend understood the request
	// and refused it (4xx). The command was definitely not applied.
	ErrBackendRejected = errors.New("gateway: backend rejected request")
)
