package device

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is a device capability set. Each kind has its own action vocabulary
// and parameter schema.
type Kind string

// Known device kinds.
const (
	KindLED    Kind = "led"
	KindBuzzer Kind = "buzzer"
)

// StateUnknown is the state of a device before any update has been applied.
const StateUnknown = "unknown"

// Brightness bounds for the LED.
const (
	BrightnessMin     = 0.0
	BrightnessMax     = 100.0
	BrightnessDefault = 100.0
)

// Descriptor is a named device and its kind.
type Descriptor struct {
	Name string
	Kind Kind
}

// Known returns the fixed device catalogue of the installation.
func Known() []Descriptor {
	return []Descriptor{
		{Name: "led", Kind: KindLED},
		{Name: "buzzer", Kind: KindBuzzer},
	}
}

// Lookup resolves a device name to its descriptor.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Known() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// kindActions maps each kind to its valid actions.
var kindActions = map[Kind][]string{
	KindLED:    {"on", "off", "toggle"},
	KindBuzzer: {"on", "off", "beep", "alarm"},
}

// ValidActions returns the action vocabulary for a kind.
func ValidActions(kind Kind) []string {
	return kindActions[kind]
}

// ValidateCommand checks that an action is valid for the kind and returns
// normalised parameters. For the LED, brightness is clamped to [0,100] and
// defaulted to 100 when switching on; parameters outside the kind's schema
// are dropped. The input map is never modified.
//
// Returns ErrInvalidAction if the action is not in the kind's vocabulary.
func ValidateCommand(kind Kind, action string, params map[string]any) (map[string]any, error) {
	valid := false
	for _, a := range kindActions[kind] {
		if a == action {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("%w: %q is not valid for kind %q", ErrInvalidAction, action, kind)
	}

	normalized := map[string]any{}

	if kind == KindLED && (action == "on" || action == "toggle") {
		brightness := BrightnessDefault
		if raw, ok := params["brightness"]; ok {
			value, numOk := toFloat(raw)
			if !numOk {
				return nil, fmt.Errorf("%w: brightness must be a number, got %T", ErrInvalidAction, raw)
			}
			brightness = clampBrightness(value)
		}
		normalized["brightness"] = brightness
	}

	return normalized, nil
}

// TargetState maps an action to the state the device will settle in.
// For the LED's toggle, the outcome depends on the current state; an
// unknown current state toggles to on.
func TargetState(kind Kind, action, currentState string) string {
	if kind == KindLED && action == "toggle" {
		if currentState == "on" {
			return "off"
		}
		return "on"
	}
	return action
}

// clampBrightness bounds a brightness value to the valid range.
func clampBrightness(v float64) float64 {
	if v < BrightnessMin {
		return BrightnessMin
	}
	if v > BrightnessMax {
		return BrightnessMax
	}
	return v
}

// toFloat converts the numeric types a JSON decode or caller may produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Record is a persisted device state row, mirroring the device_states table.
type Record struct {
	Name      string         `json:"device_name"`
	Kind      Kind           `json:"device_type"`
	State     string         `json:"state"`
	Value     map[string]any `json:"value"`
	UpdatedAt time.Time      `json:"last_updated"`
	UpdatedBy string         `json:"updated_by"`
}
