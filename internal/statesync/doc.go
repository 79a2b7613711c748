// Package statesync keeps the displayed state of each actuator consistent
// across four independent, unordered update sources.
//
// When a user toggles the LED or buzzer, the new state can reach a client
// four ways, in any order:
//
//   - an optimistic local update applied the instant the user acts
//   - the confirmed response of the REST control call
//   - a broadcast on the realtime bus, which every client (including the
//     issuer) may receive before or after the confirmation, or never
//   - a delayed fallback query against the authoritative backend, run to
//     repair lost confirmations and out-of-band changes
//
// There is no shared sequence number across these actors, so the merge
// policy is built on source authority instead of timestamps:
//
//   - confirmed and fallback values come from the authoritative store and
//     always replace what is displayed
//   - broadcasts apply unconditionally, except during a short grace window
//     after a local optimistic update, so a slow self-echoed broadcast
//     cannot flap the display back to a stale pre-command value
//   - optimistic values apply immediately; a newer optimistic update for
//     the same device supersedes the previous one and restarts its window
//
// Store owns the merged per-device state and the merge policy. Dispatcher
// turns one user command into the coordinated set of side effects: the
// optimistic update, the authoritative write, the bus broadcast for other
// clients, and the fallback reconciliation timer. Both take an injectable
// Clock so tests advance time deterministically.
//
// # Architecture
//
//	user action ──▶ Dispatcher ──┬──▶ ControlGateway write ──▶ confirmed ─┐
//	                             ├──▶ bus publish (other clients)         │
//	                             ├──▶ optimistic ─────────────────────────┤
//	                             └──▶ fallback timer ──▶ status query ────┤
//	                                                                      ▼
//	bus state_update ──▶ broadcast ─────────────────────────────────▶ Store ──▶ UI
//
// # Usage
//
//	store := statesync.NewStore(device.Known(), statesync.StoreConfig{
//	    GraceWindow: cfg.Sync.GraceWindow(),
//	})
//	dispatcher, err := statesync.NewDispatcher(statesync.DispatcherConfig{
//	    Store:          store,
//	    Gateway:        gw,
//	    Bus:            bus,
//	    ControlChannel: cfg.Realtime.Channels.Control,
//	    FallbackDelay:  cfg.Sync.FallbackDelay(),
//	    ClientID:       bus.ClientID(),
//	})
//
//	bus.Subscribe(cfg.Realtime.Channels.Control, dispatcher.HandleBroadcast)
//	err = dispatcher.Issue(ctx, "led", "on", map[string]any{"brightness": 80})
//
// # Thread Safety
//
// All Store and Dispatcher methods are safe for concurrent use. The four
// sources are logically concurrent; the store serialises every mutation
// through Apply under one lock, so a device's state and parameters always
// change together as one atomic record replace.
package statesync
