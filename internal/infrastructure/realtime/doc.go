// Package realtime provides the publish/subscribe transport for the
// smart-home stack, backed by an MQTT broker via paho.mqtt.golang.
//
// The system communicates over three logical channels (sensor, control,
// alert), each mapped directly to an MQTT topic. Delivery follows the
// broker's semantics: best effort per the configured QoS, unordered across
// publishers. Nothing in this package assumes a published message is ever
// received, and nothing downstream may either — the state synchronizer in
// internal/statesync converges through its confirmed/fallback paths even
// when the bus is down.
//
// # Connection lifecycle
//
// The bus exposes its connection state as one of {disconnected, connecting,
// connected, error} and reconnects automatically with exponential backoff.
// Subscriptions registered through Subscribe are restored after every
// reconnect.
//
// # Usage
//
//	bus, err := realtime.Connect(cfg.Realtime)
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	bus.Subscribe(cfg.Realtime.Channels.Control, func(channel string, payload []byte) error {
//	    // handle state_update / control_command
//	    return nil
//	})
//
//	env := realtime.NewEnvelope(realtime.TypeStateUpdate, clientID)
//	env.Device = "led"
//	env.State = "on"
//	bus.PublishJSON(cfg.Realtime.Channels.Control, env)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Handlers are invoked on paho's goroutines and should not block.
package realtime
