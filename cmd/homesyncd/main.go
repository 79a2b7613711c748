// Smart Home IoT - Wall Panel Synchronizer
//
// homesyncd is the wall-panel agent. It keeps a local view of the LED and
// buzzer state that converges with the backend regardless of the order in
// which optimistic, confirmed, broadcast, and fallback updates arrive.
// A display process subscribes to the local store; this daemon owns the
// plumbing: bus subscription, control gateway, and the synchronizer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/device"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/gateway"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/config"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/logging"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/realtime"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/statesync"
)

// Version information - set at build time via ldflags
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupSyncTimeout bounds the initial status query against the backend.
const startupSyncTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting wall panel synchronizer",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load .env if present; real environment variables still win.
	if err := godotenv.Load(); err == nil {
		log.Info(".env file loaded")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Control gateway: the authoritative backend for writes and fallback
	// queries.
	gw, err := gateway.New(gateway.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: time.Duration(cfg.Backend.Timeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating control gateway: %w", err)
	}
	log.Info("control gateway configured", "base_url", cfg.Backend.BaseURL)

	// Connect to the realtime bus
	bus, err := realtime.Connect(cfg.Realtime)
	if err != nil {
		return fmt.Errorf("connecting to realtime bus: %w", err)
	}
	defer func() {
		log.Info("disconnecting from realtime bus")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing realtime bus", "error", closeErr)
		}
	}()
	bus.SetLogger(log.With("component", "realtime"))
	bus.SetOnConnect(func() {
		log.Info("realtime bus reconnected")
	})
	bus.SetOnDisconnect(func(err error) {
		log.Warn("realtime bus disconnected", "error", err)
	})
	log.Info("realtime bus connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Realtime.Broker.Host, cfg.Realtime.Broker.Port),
		"client_id", bus.ClientID(),
	)

	// Local display store for the known actuators.
	store := statesync.NewStore(device.Known(), statesync.StoreConfig{
		GraceWindow: cfg.Sync.GraceWindow(),
		Logger:      log.With("component", "statesync"),
	})
	defer store.Close()

	// Log every accepted display change. A panel UI subscribes the same
	// way to repaint its widgets.
	unsubscribe := store.Subscribe(func(snap statesync.Snapshot) {
		log.Info("display updated",
			"device", snap.Device,
			"state", snap.State,
			"parameters", snap.Parameters,
			"source", snap.Source.String(),
			"revision", snap.Revision,
		)
	})
	defer unsubscribe()

	dispatcher, err := statesync.NewDispatcher(statesync.DispatcherConfig{
		Store:          store,
		Gateway:        gw,
		Bus:            bus,
		ControlChannel: cfg.Realtime.Channels.Control,
		ClientID:       bus.ClientID(),
		FallbackDelay:  cfg.Sync.FallbackDelay(),
		Logger:         log.With("component", "statesync"),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer dispatcher.Close()

	// Mirror state updates published by the backend and by other panels.
	if subErr := bus.Subscribe(cfg.Realtime.Channels.Control, dispatcher.HandleBroadcast); subErr != nil {
		return fmt.Errorf("subscribing to control channel: %w", subErr)
	}
	defer func() {
		if unsubErr := bus.Unsubscribe(cfg.Realtime.Channels.Control); unsubErr != nil {
			log.Warn("error releasing control subscription", "error", unsubErr)
		}
	}()
	log.Info("control channel subscribed", "channel", cfg.Realtime.Channels.Control)

	// Seed the display from the backend so the panel does not show
	// "unknown" until the first live update. Startup still succeeds when
	// the backend is briefly unreachable; the display converges once
	// traffic arrives.
	if syncErr := primeFromBackend(ctx, gw, store); syncErr != nil {
		log.Warn("initial status query failed, display starts unknown", "error", syncErr)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("wall panel synchronizer stopped")
	return nil
}

// primeFromBackend seeds the store with the backend's current view of
// every device. The values enter as fallback events, so anything fresher
// that arrives concurrently keeps precedence.
func primeFromBackend(ctx context.Context, gw *gateway.Client, store *statesync.Store) error {
	queryCtx, cancel := context.WithTimeout(ctx, startupSyncTimeout)
	defer cancel()

	states, err := gw.QueryStatus(queryCtx)
	if err != nil {
		return err
	}

	for name, confirmed := range states {
		store.Apply(statesync.Event{
			Device:     name,
			Source:     statesync.SourceFallback,
			State:      confirmed.State,
			Parameters: confirmed.Parameters,
		})
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
