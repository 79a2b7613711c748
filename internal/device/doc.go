// Package device defines the actuator catalogue of the smart home: which
// devices exist, what each kind can do, and how their states persist.
//
// The catalogue is small and fixed — an LED strip and a buzzer wired to the
// Raspberry Pi node — but the schemas are per-kind: the LED carries a
// brightness parameter, the buzzer has beep and alarm patterns. Command
// validation (action valid for kind, brightness clamped to range) lives
// here so the REST backend and the client-side dispatcher reject the same
// inputs the same way.
//
// # Key Types
//
//   - Kind: device capability set (led, buzzer)
//   - Descriptor: a named device and its kind
//   - Record: a persisted device state row
//   - Repository: SQLite persistence for current state and change history
//
// # Usage
//
//	params, err := device.ValidateCommand(device.KindLED, "on", map[string]any{"brightness": 140})
//	// params["brightness"] == 100.0, clamped
//
//	target := device.TargetState(device.KindLED, "toggle", "on") // "off"
package device
