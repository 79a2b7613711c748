package statesync

import (
	"sync"
	"time"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/device"
)

// StoreConfig tunes a Store.
type StoreConfig struct {
	// GraceWindow is how long a local optimistic value shields its device
	// from conflicting broadcasts. Typically on the order of the fallback
	// delay.
	GraceWindow time.Duration

	// Clock defaults to SystemClock when nil.
	Clock Clock

	// Logger defaults to a no-op logger when nil.
	Logger Logger
}

// defaultGraceWindow applies when StoreConfig.GraceWindow is zero.
const defaultGraceWindow = 1500 * time.Millisecond

// Store is the single point of truth for what the UI shows right now.
//
// It merges events from the four update sources per the source-authority
// policy and notifies subscribers on every accepted change. Each device's
// state and parameters are replaced together, atomically, per event.
//
// All methods are safe for concurrent use; every mutation is serialised
// through Apply under one lock.
type Store struct {
	mu      sync.RWMutex
	clock   Clock
	grace   time.Duration
	logger  Logger
	records map[string]*record

	listeners    map[int]func(Snapshot)
	nextListener int

	revision uint64
	closed   bool
}

// record is the mutable per-device entry.
type record struct {
	snap Snapshot

	// provisionalUntil is the end of the optimistic grace window. Zero
	// when no optimistic update is shielding the device.
	provisionalUntil time.Time
}

// NewStore creates a store with one record per catalogue device, each
// starting in the unknown state.
func NewStore(devices []device.Descriptor, cfg StoreConfig) *Store {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}

	records := make(map[string]*record, len(devices))
	for _, d := range devices {
		records[d.Name] = &record{
			snap: Snapshot{
				Device:     d.Name,
				State:      device.StateUnknown,
				Parameters: map[string]any{},
			},
		}
	}

	return &Store{
		clock:     cfg.Clock,
		grace:     cfg.GraceWindow,
		logger:    cfg.Logger,
		records:   records,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Apply merges one incoming event. It never fails: events for devices
// outside the catalogue are logged and dropped, so a forward-compatible
// message from a newer publisher cannot crash the synchronizer, and events
// arriving after Close are swallowed.
func (s *Store) Apply(ev Event) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	rec, ok := s.records[ev.Device]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("event for unknown device ignored",
			"device", ev.Device,
			"source", ev.Source.String(),
		)
		return
	}

	now := s.clock.Now()
	if !s.accept(rec, ev, now) {
		s.mu.Unlock()
		s.logger.Debug("event not applied",
			"device", ev.Device,
			"source", ev.Source.String(),
			"state", ev.State,
		)
		return
	}

	s.revision++
	rec.snap = Snapshot{
		Device:     ev.Device,
		State:      ev.State,
		Parameters: cloneParams(ev.Parameters),
		Source:     ev.Source,
		Revision:   s.revision,
		UpdatedAt:  now,
	}

	switch ev.Source {
	case SourceOptimistic:
		// A second optimistic update supersedes the first: the window
		// restarts from now.
		rec.provisionalUntil = now.Add(s.grace)
	default:
		rec.provisionalUntil = time.Time{}
	}

	snap := rec.snap
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	// Notify outside the lock so a listener reading the store back
	// cannot deadlock.
	for _, fn := range listeners {
		fn(snap)
	}
}

// accept decides whether the event replaces the current record.
// Caller holds the lock.
func (s *Store) accept(rec *record, ev Event, now time.Time) bool {
	// A device that has never been updated takes any value.
	if rec.snap.Source == SourceNone {
		return true
	}

	switch ev.Source {
	case SourceConfirmed:
		// Authoritative write response: always wins.
		return true

	case SourceFallback:
		// Authoritative re-query: replaces only when the full record
		// differs, so an identical fallback does not churn revisions
		// or re-render the UI.
		return !rec.snap.SameValue(ev.State, ev.Parameters)

	case SourceBroadcast:
		// Broadcasts are informational: they lose only to a local
		// optimistic value still inside its grace window.
		return now.After(rec.provisionalUntil) || now.Equal(rec.provisionalUntil)

	case SourceOptimistic:
		return true

	default:
		return false
	}
}

// Current returns the displayed snapshot for a device. The boolean is
// false for devices outside the catalogue. The returned parameters are a
// copy; callers can safely modify them.
func (s *Store) Current(name string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return Snapshot{}, false
	}

	snap := rec.snap
	snap.Parameters = cloneParams(snap.Parameters)
	return snap, true
}

// All returns the displayed snapshot of every device.
func (s *Store) All() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(s.records))
	for _, rec := range s.records {
		snap := rec.snap
		snap.Parameters = cloneParams(snap.Parameters)
		snaps = append(snaps, snap)
	}
	return snaps
}

// Subscribe registers a listener invoked after every accepted update. The
// returned function removes the listener. Listeners run synchronously on
// the applying goroutine and should return quickly.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close disposes the store. Subsequent Apply calls are swallowed, so a
// fallback timer firing after page teardown is a harmless no-op.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]func(Snapshot))
	s.mu.Unlock()
}
