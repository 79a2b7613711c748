// Smart Home IoT - Backend Server
//
// This is the main entry point for the smart home backend. The backend is
// the authoritative side of the system:
//   - REST + WebSocket API for dashboards and wall panels
//   - Command authority for the LED and buzzer actuators
//   - Sensor ingestion from the realtime bus into InfluxDB
//   - Threshold alerting with SQLite persistence
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/HenriqueJoanoni/smart-home-iot/migrations"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/alert"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/api"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/device"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/config"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/database"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/influxdb"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/logging"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/realtime"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting smart home backend",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load .env if present; real environment variables still win.
	if err := godotenv.Load(); err == nil {
		log.Info(".env file loaded")
	}

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry: the persisted record is what /api/control/status
	// reports, so make sure every known actuator has a row.
	deviceRepo := device.NewSQLiteRepository(db.DB)
	if seedErr := device.SeedDefaults(ctx, deviceRepo); seedErr != nil {
		return fmt.Errorf("seeding devices: %w", seedErr)
	}
	log.Info("device registry initialised", "devices", len(device.Known()))

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

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Alert service: evaluates thresholds, persists to SQLite, mirrors
	// new alerts onto the alert channel.
	alertService, err := alert.NewService(alert.ServiceConfig{
		Repo:         alert.NewSQLiteRepository(db.DB),
		Thresholds:   alert.NewThresholds(cfg.Alerts),
		Bus:          bus,
		AlertChannel: cfg.Realtime.Channels.Alert,
		ClientID:     bus.ClientID(),
		Logger:       log.With("component", "alert"),
	})
	if err != nil {
		return fmt.Errorf("creating alert service: %w", err)
	}

	// Sensor ingestor: needs the time-series store, so it only runs when
	// InfluxDB is enabled. Live websocket fan-out works either way.
	var ingestor *sensor.Ingestor
	if influxClient != nil {
		ingestor, err = sensor.NewIngestor(sensor.IngestorConfig{
			Store:  influxClient,
			Alerts: alertService,
			Logger: log.With("component", "sensor"),
		})
		if err != nil {
			return fmt.Errorf("creating sensor ingestor: %w", err)
		}
	} else {
		log.Info("sensor ingestion disabled (no time-series store)")
	}

	// API server
	srv, err := newAPIServer(cfg, log, db, deviceRepo, alertService, influxClient, bus)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	// Bus subscriptions. Each channel fans out to its consumer and to the
	// websocket hub so connected dashboards see live traffic.
	sensorHandlers := []realtime.Handler{srv.BusRelay(api.WSChannelSensors)}
	if ingestor != nil {
		sensorHandlers = append([]realtime.Handler{ingestor.HandleBusMessage}, sensorHandlers...)
	}
	if subErr := bus.Subscribe(cfg.Realtime.Channels.Sensor, chainHandlers(sensorHandlers...)); subErr != nil {
		return fmt.Errorf("subscribing to sensor channel: %w", subErr)
	}
	if subErr := bus.Subscribe(cfg.Realtime.Channels.Alert, chainHandlers(
		alertService.HandleBusMessage,
		srv.BusRelay(api.WSChannelAlerts),
	)); subErr != nil {
		return fmt.Errorf("subscribing to alert channel: %w", subErr)
	}
	if subErr := bus.Subscribe(cfg.Realtime.Channels.Control, srv.BusRelay(api.WSChannelDeviceState)); subErr != nil {
		return fmt.Errorf("subscribing to control channel: %w", subErr)
	}
	log.Info("bus subscriptions established",
		"sensor", cfg.Realtime.Channels.Sensor,
		"control", cfg.Realtime.Channels.Control,
		"alert", cfg.Realtime.Channels.Alert,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, bus, influxClient, srv); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Realtime bus
	// 4. Database

	log.Info("smart home backend stopped")
	return nil
}

// newAPIServer assembles the API server dependencies. The optional
// components are only assigned when present, so a disabled InfluxDB
// surfaces as 503 on the sensor endpoints rather than a nil dereference.
func newAPIServer(
	cfg *config.Config,
	log *logging.Logger,
	db *database.DB,
	devices device.Repository,
	alerts *alert.Service,
	influxClient *influxdb.Client,
	bus *realtime.Bus,
) (*api.Server, error) {
	deps := api.Deps{
		Config:    cfg.API,
		Logger:    log.With("component", "api"),
		Devices:   devices,
		Alerts:    alerts,
		Bus:       bus,
		Channels:  cfg.Realtime.Channels,
		ClientID:  bus.ClientID(),
		DBHealth:  db,
		BusHealth: bus,
		Version:   version,
	}
	if influxClient != nil {
		deps.Sensors = influxClient
		deps.InfluxHealth = influxClient
	}
	return api.New(deps)
}

// chainHandlers composes bus handlers so one channel can feed several
// consumers. Every handler runs; the first error is returned after the
// rest have been called.
func chainHandlers(handlers ...realtime.Handler) realtime.Handler {
	return func(channel string, payload []byte) error {
		var first error
		for _, h := range handlers {
			if err := h(channel, payload); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - bus: Realtime bus to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - srv: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, bus *realtime.Bus, influxClient *influxdb.Client, srv *api.Server) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := bus.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("realtime bus: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := srv.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}
