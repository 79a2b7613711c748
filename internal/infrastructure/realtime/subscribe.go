package realtime

import (
	"fmt"
)

// Subscribe registers a handler for messages on the specified channel.
//
// The handler is called in a separate goroutine for each received message.
// Handlers should not block for extended periods as this may affect message
// processing throughput.
//
// Subscriptions are automatically restored if the connection is lost and
// reconnected (tracked internally).
//
// Parameters:
//   - channel: The channel to subscribe to
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (b *Bus) Subscribe(channel string, handler Handler) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !b.IsConnected() {
		return ErrNotConnected
	}

	qos := byte(b.cfg.QoS)

	// Track subscription for reconnection restoration
	b.subMu.Lock()
	b.subscriptions[channel] = subscription{
		channel: channel,
		qos:     qos,
		handler: handler,
	}
	b.subMu.Unlock()

	// Subscribe with wrapped handler (includes panic recovery)
	token := b.client.Subscribe(channel, qos, b.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		b.dropSubscription(channel)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		b.dropSubscription(channel)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a channel.
//
// After unsubscribing, the handler will no longer be called for new messages
// on this channel. Any messages in flight may still be delivered.
//
// Parameters:
//   - channel: The channel that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (b *Bus) Unsubscribe(channel string) error {
	if channel == "" {
		return ErrInvalidChannel
	}

	if !b.IsConnected() {
		return ErrNotConnected
	}

	b.dropSubscription(channel)

	token := b.client.Unsubscribe(channel)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// dropSubscription removes a channel from the re-subscription tracking map.
func (b *Bus) dropSubscription(channel string) {
	b.subMu.Lock()
	delete(b.subscriptions, channel)
	b.subMu.Unlock()
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions)
}

// HasSubscription checks if a subscription exists for the given channel.
func (b *Bus) HasSubscription(channel string) bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	_, exists := b.subscriptions[channel]
	return exists
}
