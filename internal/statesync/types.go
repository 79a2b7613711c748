package statesync

import (
	"context"
	"maps"
	"reflect"
	"time"
)

// Source tags where a state value came from. The merge policy is built on
// source authority: values from the authoritative backend (confirmed,
// fallback) beat local guesses and bus gossip.
type Source int

// Update sources, in increasing order of recency of introduction, not
// authority. SourceNone marks a device that has never been updated.
const (
	SourceNone Source = iota
	SourceOptimistic
	SourceConfirmed
	SourceBroadcast
	SourceFallback
)

// String returns the lowercase name of the source.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceOptimistic:
		return "optimistic"
	case SourceConfirmed:
		return "confirmed"
	case SourceBroadcast:
		return "broadcast"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Authoritative reports whether values from this source originate from the
// authoritative backend store.
func (s Source) Authoritative() bool {
	return s == SourceConfirmed || s == SourceFallback
}

// Snapshot is the displayed state of one device at an instant. State and
// Parameters always come from the same update; there is never a torn pair.
type Snapshot struct {
	// Device is the device name ("led", "buzzer").
	Device string

	// State is the discrete state field ("on", "off", "beep", ...).
	// "unknown" until the first update arrives.
	State string

	// Parameters holds auxiliary fields such as brightness.
	Parameters map[string]any

	// Source tags how this value was obtained.
	Source Source

	// Revision increases with every accepted update in this store. It
	// orders local applications only; it is not shared across clients.
	Revision uint64

	// UpdatedAt is the local wall-clock time of the last mutation, for
	// display only. It plays no part in conflict resolution.
	UpdatedAt time.Time
}

// SameValue reports whether the snapshot displays exactly the given state
// and parameters. Both the state and the full parameter record are
// compared; a parameter-only difference counts as a different value.
func (s Snapshot) SameValue(state string, parameters map[string]any) bool {
	if s.State != state {
		return false
	}
	if len(s.Parameters) != len(parameters) {
		return false
	}
	return reflect.DeepEqual(normalizeParams(s.Parameters), normalizeParams(parameters))
}

// normalizeParams maps nil to an empty map so SameValue treats "no
// parameters" uniformly regardless of how the caller spelled it.
func normalizeParams(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

// cloneParams copies a parameter map so snapshots never alias caller or
// message-decoder memory.
func cloneParams(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return maps.Clone(p)
}

// Event is one incoming update for a device from one of the four sources.
type Event struct {
	Device     string
	Source     Source
	State      string
	Parameters map[string]any
}

// ConfirmedState is a device value reported by the authoritative backend,
// either as a control-write response or a status-query entry.
type ConfirmedState struct {
	State      string
	Parameters map[string]any
}

// ControlGateway issues device commands and status queries against the
// authoritative backend. Implementations live in internal/gateway; tests
// substitute fakes.
type ControlGateway interface {
	// SendCommand applies a command and returns the resulting state.
	SendCommand(ctx context.Context, device, action string, parameters map[string]any) (ConfirmedState, error)

	// QueryStatus returns the current authoritative state of every device.
	QueryStatus(ctx context.Context) (map[string]ConfirmedState, error)
}

// Publisher is the outbound half of the realtime bus.
type Publisher interface {
	PublishJSON(channel string, v any) error
}

// Logger defines the logging interface used by the synchronizer.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
