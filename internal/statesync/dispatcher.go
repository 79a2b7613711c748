package statesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/device"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/realtime"
)

// defaultFallbackDelay applies when DispatcherConfig.FallbackDelay is zero.
const defaultFallbackDelay = time.Second

// fallbackQueryTimeout bounds the authoritative status query run by a
// fallback timer, which has no caller context to inherit.
const fallbackQueryTimeout = 5 * time.Second

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	// Store receives the optimistic, confirmed, and fallback events.
	Store *Store

	// Gateway performs the authoritative write and the fallback query.
	Gateway ControlGateway

	// Bus mirrors commands to other clients. Optional: when nil, no
	// broadcast is published and the system converges through the
	// confirmed and fallback paths alone.
	Bus Publisher

	// ControlChannel is the bus channel state updates are published on.
	ControlChannel string

	// ClientID is the publisher identity stamped on outbound envelopes.
	ClientID string

	// FallbackDelay is how long after issuing a command the backend is
	// re-queried. Defaults to one second.
	FallbackDelay time.Duration

	// Clock defaults to SystemClock when nil.
	Clock Clock

	// Logger defaults to a no-op logger when nil.
	Logger Logger
}

// PendingCommand is one in-flight user command. It exists from the moment
// the user acts until its confirmation and fallback paths have both
// completed; it is never persisted.
type PendingCommand struct {
	ID         string
	Device     string
	Action     string
	Parameters map[string]any
	IssuedAt   time.Time

	timer     Timer
	confirmed bool
}

// Dispatcher turns one user command into the coordinated set of side
// effects: optimistic update, authoritative write, bus broadcast, and the
// scheduled fallback reconciliation.
//
// All methods are safe for concurrent use. Overlapping commands for the
// same device are allowed; each keeps its own PendingCommand and fallback
// timer, and the store's precedence rule decides which landing update wins.
type Dispatcher struct {
	store          *Store
	gateway        ControlGateway
	bus            Publisher
	clock          Clock
	logger         Logger
	controlChannel string
	clientID       string
	fallbackDelay  time.Duration

	mu      sync.Mutex
	pending map[string][]*PendingCommand
	closed  bool
}

// NewDispatcher creates a dispatcher from its dependencies.
//
// Returns an error if the store or gateway is missing; everything else has
// a usable default.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("statesync: store is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("statesync: gateway is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = defaultFallbackDelay
	}

	return &Dispatcher{
		store:          cfg.Store,
		gateway:        cfg.Gateway,
		bus:            cfg.Bus,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		controlChannel: cfg.ControlChannel,
		clientID:       cfg.ClientID,
		fallbackDelay:  cfg.FallbackDelay,
	}, nil
}

// Issue executes one user command against a device.
//
// The optimistic value is shown immediately, the command is mirrored on
// the bus for other clients, a fallback reconciliation is scheduled, and
// the authoritative write is applied as confirmed when its response
// arrives.
//
// Invalid commands are rejected with ErrInvalidCommand before any side
// effect. A failed authoritative write is returned as an error, but the
// optimistic value stays on display — no flicker back — and the already
// scheduled fallback still runs and corrects the display if needed. The
// write is never retried automatically: a repeated "beep" is a different
// command, not a retry.
func (d *Dispatcher) Issue(ctx context.Context, deviceName, action string, parameters map[string]any) error {
	desc, ok := device.Lookup(deviceName)
	if !ok {
		return fmt.Errorf("%w: unknown device %q", ErrInvalidCommand, deviceName)
	}

	normalized, err := device.ValidateCommand(desc.Kind, action, parameters)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.mu.Unlock()

	current, _ := d.store.Current(deviceName)
	target := device.TargetState(desc.Kind, action, current.State)

	cmd := &PendingCommand{
		ID:         uuid.NewString(),
		Device:     deviceName,
		Action:     action,
		Parameters: cloneParams(normalized),
		IssuedAt:   d.clock.Now(),
	}
	d.addPending(cmd)

	// 1. Optimistic update: the user sees the requested state now.
	d.store.Apply(Event{
		Device:     deviceName,
		Source:     SourceOptimistic,
		State:      target,
		Parameters: normalized,
	})

	// 2. Mirror on the bus so other clients converge without polling.
	// Published after the local optimistic apply, so this client's first
	// visible value is never its own echoed broadcast. Best effort: a
	// down bus only slows convergence, the confirmed and fallback paths
	// still run.
	if d.bus != nil {
		env := realtime.NewEnvelope(realtime.TypeStateUpdate, d.clientID)
		env.Device = deviceName
		env.Action = action
		env.State = target
		env.Parameters = normalized
		if pubErr := d.bus.PublishJSON(d.controlChannel, env); pubErr != nil {
			d.logger.Warn("state broadcast failed",
				"device", deviceName,
				"error", pubErr,
			)
		}
	}

	// 3. Fallback reconciliation: re-query the authoritative store after
	// the delay to repair a lost confirmation or an out-of-band change.
	cmd.timer = d.clock.AfterFunc(d.fallbackDelay, func() {
		d.runFallback(cmd)
	})

	// 4. Authoritative write. The response may differ from the optimistic
	// value (the backend clamps brightness); it overrides.
	confirmed, err := d.gateway.SendCommand(ctx, deviceName, action, normalized)
	if err != nil {
		d.logger.Warn("control write failed, optimistic value stays until fallback",
			"device", deviceName,
			"action", action,
			"error", err,
		)
		return fmt.Errorf("sending %s command to %s: %w", action, deviceName, err)
	}

	d.store.Apply(Event{
		Device:     deviceName,
		Source:     SourceConfirmed,
		State:      confirmed.State,
		Parameters: confirmed.Parameters,
	})

	d.markConfirmed(cmd)
	return nil
}

// HandleBroadcast processes one inbound control-channel message. It
// satisfies realtime.Handler and never returns an error: malformed
// payloads and unexpected types are dropped and logged so schema drift
// between publishers cannot crash the synchronizer.
func (d *Dispatcher) HandleBroadcast(channel string, payload []byte) error {
	var env realtime.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		d.logger.Warn("malformed bus message dropped",
			"channel", channel,
			"error", err,
		)
		return nil
	}

	switch env.Type {
	case realtime.TypeStateUpdate:
		d.store.Apply(Event{
			Device:     env.Device,
			Source:     SourceBroadcast,
			State:      env.State,
			Parameters: env.Parameters,
		})
	case realtime.TypeControlCommand:
		// Actuator-bound; the synchronizer mirrors resulting state only.
		d.logger.Debug("control command observed on bus",
			"device", env.Device,
			"action", env.Action,
		)
	default:
		d.logger.Debug("unhandled bus message type", "type", env.Type)
	}

	return nil
}

// runFallback performs the delayed authoritative re-query for one command.
// The store ignores the resulting event when it matches what is already
// displayed, so a correct confirmation path makes this a no-op.
func (d *Dispatcher) runFallback(cmd *PendingCommand) {
	defer d.removePending(cmd)

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fallbackQueryTimeout)
	defer cancel()

	status, err := d.gateway.QueryStatus(ctx)
	if err != nil {
		d.logger.Warn("fallback status query failed",
			"device", cmd.Device,
			"error", err,
		)
		return
	}

	st, ok := status[cmd.Device]
	if !ok {
		d.logger.Warn("fallback status missing device", "device", cmd.Device)
		return
	}

	d.store.Apply(Event{
		Device:     cmd.Device,
		Source:     SourceFallback,
		State:      st.State,
		Parameters: st.Parameters,
	})
}

// PendingCount returns the number of in-flight commands for a device.
func (d *Dispatcher) PendingCount(deviceName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending[deviceName])
}

// Close stops accepting commands. In-flight fallback timers are stopped
// where possible; any that already fired become no-ops against the store
// once it is closed by the owner.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	var timers []Timer
	for _, cmds := range d.pending {
		for _, cmd := range cmds {
			if cmd.timer != nil {
				timers = append(timers, cmd.timer)
			}
		}
	}
	d.pending = nil
	d.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// addPending registers an in-flight command.
func (d *Dispatcher) addPending(cmd *PendingCommand) {
	d.mu.Lock()
	if d.pending == nil {
		d.pending = make(map[string][]*PendingCommand)
	}
	d.pending[cmd.Device] = append(d.pending[cmd.Device], cmd)
	d.mu.Unlock()
}

// markConfirmed flags a command's confirmation path as complete.
func (d *Dispatcher) markConfirmed(cmd *PendingCommand) {
	d.mu.Lock()
	cmd.confirmed = true
	d.mu.Unlock()
}

// removePending drops a command after its fallback path completes.
func (d *Dispatcher) removePending(cmd *PendingCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmds := d.pending[cmd.Device]
	for i, c := range cmds {
		if c.ID == cmd.ID {
			d.pending[cmd.Device] = append(cmds[:i], cmds[i+1:]...)
			break
		}
	}
	if len(d.pending[cmd.Device]) == 0 {
		delete(d.pending, cmd.Device)
	}
}
