package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for environment variable overrides.
// Example: SMARTHOME_BACKEND_BASEURL, SMARTHOME_REALTIME_BROKER_HOST.
const envPrefix = "SMARTHOME"

// Config is the root configuration structure for the smart-home stack.
// All configuration is loaded from YAML and can be overridden by environment
// variables (SMARTHOME_* prefix).
type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Backend  BackendConfig  `yaml:"backend"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Sync     SyncConfig     `yaml:"sync"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ClientConfig identifies this process on the realtime bus.
type ClientConfig struct {
	// ID is the publisher identity attached to outbound bus messages.
	// Defaults to a generated value when empty.
	ID string `yaml:"id"`

	// Location is reported with sensor readings originating here.
	Location string `yaml:"location"`
}

// BackendConfig contains the REST backend connection settings used by the
// control gateway.
type BackendConfig struct {
	// BaseURL is the root of the backend API, e.g. "http://localhost:5000".
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// RealtimeConfig contains realtime bus (MQTT broker) settings.
type RealtimeConfig struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Auth      BrokerAuth      `yaml:"auth"`
	QoS       int             `yaml:"qos"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Channels  ChannelConfig   `yaml:"channels"`
}

// BrokerConfig contains broker connection details.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// BrokerAuth contains broker authentication credentials.
type BrokerAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectConfig contains bus reconnection settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// ChannelConfig names the three logical channels of the system.
// The values must be pairwise distinct; identical channel names cause
// message routing conflicts between the handlers.
type ChannelConfig struct {
	Sensor  string `yaml:"sensor"`
	Control string `yaml:"control"`
	Alert   string `yaml:"alert"`
}

// SyncConfig contains the device-state synchronizer tuning knobs.
type SyncConfig struct {
	// FallbackDelayMs is how long after issuing a command the authoritative
	// store is re-queried to repair lost confirmations.
	FallbackDelayMs int `yaml:"fallback_delay_ms"`

	// GraceWindowMs is how long a local optimistic value shields the device
	// from conflicting broadcast echoes.
	GraceWindowMs int `yaml:"grace_window_ms"`
}

// FallbackDelay returns the fallback delay as a time.Duration.
func (s SyncConfig) FallbackDelay() time.Duration {
	return time.Duration(s.FallbackDelayMs) * time.Millisecond
}

// GraceWindow returns the grace window as a time.Duration.
func (s SyncConfig) GraceWindow() time.Duration {
	return time.Duration(s.GraceWindowMs) * time.Millisecond
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor readings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AlertsConfig contains sensor threshold settings.
type AlertsConfig struct {
	Temperature BandThreshold `yaml:"temperature"`
	Humidity    BandThreshold `yaml:"humidity"`
	Light       LowThreshold  `yaml:"light"`
}

// BandThreshold is a high/low pair for sensors alerting in both directions.
type BandThreshold struct {
	High float64 `yaml:"high"`
	Low  float64 `yaml:"low"`
}

// LowThreshold is a low-only bound for sensors alerting in one direction.
type LowThreshold struct {
	Low float64 `yaml:"low"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern SMARTHOME_SECTION_KEY, processed
// by envconfig. For example: SMARTHOME_DATABASE_PATH, SMARTHOME_API_PORT.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Environment overrides beat file values.
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults for a single-home setup.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Location: "living_room",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10,
		},
		Realtime: RealtimeConfig{
			Broker: BrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Channels: ChannelConfig{
				Sensor:  "smart-home-sensors",
				Control: "smart-home-control",
				Alert:   "smart-home-alerts",
			},
		},
		Sync: SyncConfig{
			FallbackDelayMs: 1000,
			GraceWindowMs:   1500,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
			},
		},
		Database: DatabaseConfig{
			Path:        "data/smarthome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "sensors",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Alerts: AlertsConfig{
			Temperature: BandThreshold{High: 30.0, Low: 15.0},
			Humidity:    BandThreshold{High: 70.0, Low: 30.0},
			Light:       LowThreshold{Low: 50.0},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate checks the configuration for invalid or conflicting values.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %d", c.Backend.Timeout)
	}
	if c.Realtime.Broker.Host == "" {
		return fmt.Errorf("realtime.broker.host is required")
	}
	if c.Realtime.Broker.Port <= 0 || c.Realtime.Broker.Port > 65535 {
		return fmt.Errorf("realtime.broker.port must be 1-65535, got %d", c.Realtime.Broker.Port)
	}
	if c.Realtime.QoS < 0 || c.Realtime.QoS > 2 {
		return fmt.Errorf("realtime.qos must be 0, 1, or 2, got %d", c.Realtime.QoS)
	}
	if err := c.Realtime.Channels.validate(); err != nil {
		return err
	}
	if c.Sync.FallbackDelayMs <= 0 {
		return fmt.Errorf("sync.fallback_delay_ms must be positive, got %d", c.Sync.FallbackDelayMs)
	}
	if c.Sync.GraceWindowMs <= 0 {
		return fmt.Errorf("sync.grace_window_ms must be positive, got %d", c.Sync.GraceWindowMs)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", c.API.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		return fmt.Errorf("influxdb.url is required when influxdb is enabled")
	}
	return nil
}

// validate ensures the three channels are named and pairwise distinct.
// Identical names would deliver sensor traffic to the alert handler and
// vice versa.
func (c ChannelConfig) validate() error {
	names := []struct {
		key  string
		name string
	}{
		{"sensor", c.Sensor},
		{"control", c.Control},
		{"alert", c.Alert},
	}
	seen := make(map[string]string, len(names))
	for _, n := range names {
		if n.name == "" {
			return fmt.Errorf("realtime.channels.%s is required", n.key)
		}
		if other, dup := seen[n.name]; dup {
			return fmt.Errorf("realtime.channels.%s and realtime.channels.%s have the same value %q", n.key, other, n.name)
		}
		seen[n.name] = n.key
	}
	return nil
}
