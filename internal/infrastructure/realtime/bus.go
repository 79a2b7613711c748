package realtime

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/config"
)

// Bus wraps paho.mqtt.golang as the smart-home realtime transport.
//
// It provides connection management, channel publishing, subscription
// handling, and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Bus struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.RealtimeConfig
	clientID string

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// state tracks the current connection lifecycle state.
	state   ConnState
	stateMu sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	channel string
	qos     byte
	handler Handler
}

// Handler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - channel: The channel the message was received on
//   - payload: The raw message payload (JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type Handler func(channel string, payload []byte) error

// Connect establishes a connection to the broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament for offline detection
//  3. Sets up auto-reconnect with exponential backoff
//  4. Attempts initial connection with timeout
//  5. Publishes online status to the presence topic
//
// Parameters:
//   - cfg: Realtime configuration from config.yaml
//
// Returns:
//   - *Bus: Connected bus ready for use
//   - error: If initial connection fails within timeout
func Connect(cfg config.RealtimeConfig) (*Bus, error) {
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = "smarthome-" + uuid.NewString()[:8]
	}

	opts := buildClientOptions(cfg, clientID)
	configureLWT(opts, clientID)

	b := &Bus{
		cfg:           cfg,
		options:       opts,
		clientID:      clientID,
		state:         StateConnecting,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		b.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		b.setState(StateConnecting)
	})

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		b.setState(StateError)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		b.setState(StateError)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Set connected state immediately after successful connection.
	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet, so set it here to ensure State() returns connected.
	b.setState(StateConnected)

	return b, nil
}

// ClientID returns the broker client identity of this bus.
// It doubles as the publisher_id stamped on outbound envelopes.
func (b *Bus) ClientID() string {
	return b.clientID
}

// handleConnect is called when the connection is established.
func (b *Bus) handleConnect() {
	b.setState(StateConnected)

	b.restoreSubscriptions()
	b.publishOnlineStatus()

	b.callbackMu.RLock()
	callback := b.onConnect
	b.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (b *Bus) handleDisconnect(err error) {
	if err != nil {
		b.setState(StateError)
	} else {
		b.setState(StateDisconnected)
	}

	b.callbackMu.RLock()
	callback := b.onDisconnect
	b.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked channels after reconnect.
func (b *Bus) restoreSubscriptions() {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for _, sub := range b.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		b.client.Subscribe(sub.channel, sub.qos, b.wrapHandler(sub.handler))
	}
}

// publishOnlineStatus publishes this client's online status to the presence topic.
func (b *Bus) publishOnlineStatus() {
	payload := buildOnlinePayload(b.clientID)
	b.client.Publish(presenceTopic(b.clientID), byte(b.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the broker.
//
// It performs:
//  1. Publishes graceful offline status (different from LWT crash status)
//  2. Waits for pending publish operations
//  3. Disconnects from broker
//
// Returns:
//   - error: Always nil; kept for interface symmetry with other closers
func (b *Bus) Close() error {
	if b.client == nil {
		return nil
	}

	if b.IsConnected() {
		payload := buildOfflinePayload(b.clientID)
		token := b.client.Publish(presenceTopic(b.clientID), byte(b.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	b.client.Disconnect(defaultDisconnectQuiesce)
	b.setState(StateDisconnected)

	return nil
}

// HealthCheck verifies the bus connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (b *Bus) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("realtime health check: %w", ctx.Err())
	default:
	}

	if !b.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the current connection lifecycle state.
func (b *Bus) State() ConnState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// IsConnected reports whether the bus is currently connected.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which can perform an active test.
func (b *Bus) IsConnected() bool {
	b.stateMu.RLock()
	connected := b.state == StateConnected
	b.stateMu.RUnlock()
	return connected && b.client != nil && b.client.IsConnected()
}

func (b *Bus) setState(s ConnState) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (b *Bus) SetOnConnect(callback func()) {
	b.callbackMu.Lock()
	b.onConnect = callback
	b.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (b *Bus) SetOnDisconnect(callback func(err error)) {
	b.callbackMu.Lock()
	b.onDisconnect = callback
	b.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (b *Bus) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (b *Bus) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// wrapHandler wraps a Handler with panic recovery and optional logging.
func (b *Bus) wrapHandler(handler Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := b.getLogger(); logger != nil {
					logger.Error("bus handler panic recovered",
						"channel", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := b.getLogger(); logger != nil {
				logger.Warn("bus handler returned error",
					"channel", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
