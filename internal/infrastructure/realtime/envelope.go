package realtime

import "time"

// Message types carried on the control and alert channels.
const (
	// TypeSensorData is published by sensor nodes on the sensor channel.
	TypeSensorData = "sensor_data"

	// TypeControlCommand is an actuator-bound command on the control channel.
	TypeControlCommand = "control_command"

	// TypeStateUpdate informs other clients of a device's new state.
	TypeStateUpdate = "state_update"

	// TypeAlert is a threshold violation on the alert channel.
	TypeAlert = "alert"
)

// Envelope is the common JSON shape of control and state messages.
//
// Sensor readings use their own shape (see internal/sensor); everything on
// the control channel uses this envelope. Unknown fields from newer
// publishers are ignored on decode, which keeps old clients working when
// the schema grows.
type Envelope struct {
	Type        string         `json:"type"`
	Device      string         `json:"device,omitempty"`
	Action      string         `json:"action,omitempty"`
	State       string         `json:"state,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	PublisherID string         `json:"publisher_id,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// NewEnvelope returns an Envelope of the given type stamped with the
// publisher identity and the current UTC time.
func NewEnvelope(msgType, publisherID string) Envelope {
	return Envelope{
		Type:        msgType,
		PublisherID: publisherID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}
