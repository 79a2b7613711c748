package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/alert"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/influxdb"
)

// checkTimeout bounds the alert evaluation for one bus message.
const checkTimeout = 5 * time.Second

// defaultLocation is assumed when a message does not carry one.
const defaultLocation = "living_room"

// TimeSeriesStore is the subset of the InfluxDB client the ingestor needs.
type TimeSeriesStore interface {
	WriteReading(r influxdb.SensorReading)
}

// AlertChecker evaluates one reading against the configured thresholds.
type AlertChecker interface {
	CheckReading(ctx context.Context, sensorType string, value float64, deviceID string) (*alert.Alert, error)
}

// Logger is the logging surface the ingestor needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// IngestorConfig holds the dependencies of an Ingestor.
type IngestorConfig struct {
	// Store persists readings. Required.
	Store TimeSeriesStore

	// Alerts evaluates thresholds. Optional; nil disables alerting.
	Alerts AlertChecker

	// OnReadings receives each ingested batch, e.g. for websocket
	// fan-out. Optional. Called synchronously from HandleBusMessage.
	OnReadings func(readings []influxdb.SensorReading)

	// Logger defaults to a no-op logger when nil.
	Logger Logger
}

// Ingestor consumes sensor_data messages from the realtime bus.
type Ingestor struct {
	store      TimeSeriesStore
	alerts     AlertChecker
	onReadings func([]influxdb.SensorReading)
	logger     Logger
}

// NewIngestor creates a sensor ingestor.
func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.Store == nil {
		return nil, errors.New("sensor: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Ingestor{
		store:      cfg.Store,
		alerts:     cfg.Alerts,
		onReadings: cfg.OnReadings,
		logger:     cfg.Logger,
	}, nil
}

// busSensorData is the wire shape of a sensor_data message. All sensor
// fields are optional; a device publishes whichever sensors it has.
type busSensorData struct {
	Type        string   `json:"type"`
	DeviceID    string   `json:"device_id"`
	Location    string   `json:"location"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Light       *float64 `json:"light,omitempty"`
	Motion      *bool    `json:"motion,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// HandleBusMessage ingests one sensor-channel message. It satisfies
// realtime.Handler and never returns an error; malformed payloads are
// dropped and logged.
func (i *Ingestor) HandleBusMessage(channel string, payload []byte) error {
	var msg busSensorData
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.logger.Warn("malformed sensor message dropped",
			"channel", channel,
			"error", err,
		)
		return nil
	}
	if msg.Type != "sensor_data" {
		i.logger.Debug("non-sensor message on sensor channel ignored", "type", msg.Type)
		return nil
	}

	readings := splitReadings(msg)
	if len(readings) == 0 {
		i.logger.Warn("sensor message carried no readings", "device_id", msg.DeviceID)
		return nil
	}

	for _, r := range readings {
		i.store.WriteReading(r)
	}

	i.logger.Debug("sensor readings stored",
		"device_id", msg.DeviceID,
		"count", len(readings),
	)

	if i.alerts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		for _, r := range readings {
			if _, err := i.alerts.CheckReading(ctx, r.SensorType, r.Value, r.DeviceID); err != nil {
				i.logger.Error("threshold check failed",
					"sensor_type", r.SensorType,
					"error", err,
				)
			}
		}
	}

	if i.onReadings != nil {
		i.onReadings(readings)
	}
	return nil
}

// splitReadings fans one combined message out into individual readings.
// Boolean motion becomes 1/0 so every series is numeric.
func splitReadings(msg busSensorData) []influxdb.SensorReading {
	deviceID := msg.DeviceID
	if deviceID == "" {
		deviceID = "unknown"
	}
	location := msg.Location
	if location == "" {
		location = defaultLocation
	}

	timestamp := time.Now().UTC()
	if msg.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			timestamp = ts.UTC()
		}
	}

	base := influxdb.SensorReading{
		Location:  location,
		DeviceID:  deviceID,
		Timestamp: timestamp,
	}

	var readings []influxdb.SensorReading
	if msg.Temperature != nil {
		r := base
		r.SensorType, r.Value, r.Unit = "temperature", *msg.Temperature, "°C"
		readings = append(readings, r)
	}
	if msg.Humidity != nil {
		r := base
		r.SensorType, r.Value, r.Unit = "humidity", *msg.Humidity, "%"
		readings = append(readings, r)
	}
	if msg.Light != nil {
		r := base
		r.SensorType, r.Value, r.Unit = "light", *msg.Light, "lux"
		readings = append(readings, r)
	}
	if msg.Motion != nil {
		r := base
		r.SensorType, r.Unit = "motion", "boolean"
		if *msg.Motion {
			r.Value = 1.0
		}
		readings = append(readings, r)
	}
	return readings
}
