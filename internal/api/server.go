package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/alert"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/device"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/config"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/influxdb"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AlertStore is the alert surface the API needs. *alert.Service satisfies it.
type AlertStore interface {
	List(ctx context.Context, filter alert.ListFilter) ([]alert.Alert, error)
	Resolve(ctx context.Context, id int64, resolvedBy string) (*alert.Alert, error)
	Counts(ctx context.Context) (alert.Counts, error)
}

// SensorStore is the time-series surface the API needs. *influxdb.Client
// satisfies it.
type SensorStore interface {
	LatestReadings(ctx context.Context) (map[string]influxdb.SensorReading, error)
	History(ctx context.Context, sensorType string, hours, limit int) ([]influxdb.SensorReading, error)
	Stats(ctx context.Context, sensorType string, hours int) (influxdb.SensorStats, error)
}

// Publisher is the outbound bus surface the API needs.
type Publisher interface {
	PublishJSON(channel string, v any) error
}

// HealthChecker reports the health of one backing component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Devices  device.Repository
	Alerts   AlertStore    // optional; alert endpoints return 503 when nil
	Sensors  SensorStore   // optional; sensor endpoints return 503 when nil
	Bus      Publisher     // optional; commands are not relayed without it
	Channels config.ChannelConfig
	ClientID string // publisher identity on the bus

	// Optional component health checks surfaced by /api/system/health.
	DBHealth     HealthChecker
	InfluxHealth HealthChecker
	BusHealth    HealthChecker

	Version string
}

// Server is the HTTP API server for the smart home backend.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	devices      device.Repository
	alerts       AlertStore
	sensors      SensorStore
	bus          Publisher
	channels     config.ChannelConfig
	clientID     string
	dbHealth     HealthChecker
	influxHealth HealthChecker
	busHealth    HealthChecker
	version      string
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, device repository)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	// Bus is optional — commands still persist without it but actuators
	// and other panels are not notified.

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		devices:      deps.Devices,
		alerts:       deps.Alerts,
		sensors:      deps.Sensors,
		bus:          deps.Bus,
		channels:     deps.Channels,
		clientID:     deps.ClientID,
		dbHealth:     deps.DBHealth,
		influxHealth: deps.InfluxHealth,
		busHealth:    deps.BusHealth,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.logger)
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
