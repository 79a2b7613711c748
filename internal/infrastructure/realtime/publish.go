package realtime

import (
	"encoding/json"
	"fmt"
)

// Maximum payload size for bus messages (256KB).
// Sensor and control messages are small; anything near this limit is a bug.
const maxPayloadSize = 256 << 10

// Publish sends a raw payload to the specified channel.
//
// Delivery follows the configured QoS; messages are never retained, since
// every message on the three channels is an event, not a state topic.
//
// Parameters:
//   - channel: The channel to publish to (e.g. "smart-home-control")
//   - payload: The message payload (JSON, max 256KB)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (b *Bus) Publish(channel string, payload []byte) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !b.IsConnected() {
		return ErrNotConnected
	}

	token := b.client.Publish(channel, byte(b.cfg.QoS), false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishJSON marshals v and publishes it to the specified channel.
//
// This is the usual entry point: callers hand over an Envelope or a typed
// message struct and the bus handles serialization.
func (b *Bus) PublishJSON(channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshaling message: %w", ErrPublishFailed, err)
	}
	return b.Publish(channel, payload)
}
