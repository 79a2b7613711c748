// Package gateway is the HTTP client for the backend control API.
//
// It performs the two operations the synchronizer needs from the backend:
// the authoritative command write (POST /api/control/{device}) and the
// full status query (GET /api/control/status) used by fallback
// reconciliation.
//
// The client never retries. A repeated command is a new user action with
// its own side effects, so retry policy belongs to the caller, not here.
// Failures are classified into two sentinel errors: ErrTransport for
// network-level problems where the backend may or may not have acted, and
// ErrBackendRejected when the backend answered and said no.
package gateway
