package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ingestTimeout bounds the database write for a bus-delivered alert,
// which has no caller context to inherit.
const ingestTimeout = 5 * time.Second

// Publisher is the outbound bus surface the service needs.
type Publisher interface {
	PublishJSON(channel string, v any) error
}

// Logger is the logging surface the service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	// Repo stores alerts. Required.
	Repo Repository

	// Thresholds evaluates sensor readings.
	Thresholds Thresholds

	// Bus mirrors new alerts to live clients. Optional.
	Bus Publisher

	// AlertChannel is the bus channel alerts are published on.
	AlertChannel string

	// ClientID identifies this publisher on the bus.
	ClientID string

	// Logger defaults to a no-op logger when nil.
	Logger Logger
}

// Service creates alerts from threshold violations, ingests alerts the
// edge devices publish on the bus, and serves queries and resolutions.
type Service struct {
	repo         Repository
	thresholds   Thresholds
	bus          Publisher
	alertChannel string
	clientID     string
	logger       Logger
}

// NewService creates an alert service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("alert: repository is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Service{
		repo:         cfg.Repo,
		thresholds:   cfg.Thresholds,
		bus:          cfg.Bus,
		alertChannel: cfg.AlertChannel,
		clientID:     cfg.ClientID,
		logger:       cfg.Logger,
	}, nil
}

// busAlert is the wire shape of an alert on the realtime bus. The edge
// devices publish the same shape.
type busAlert struct {
	Type           string   `json:"type"`
	AlertType      string   `json:"alert_type"`
	Severity       string   `json:"severity"`
	Title          string   `json:"title,omitempty"`
	Message        string   `json:"message"`
	SensorType     string   `json:"sensor_type,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	ThresholdValue *float64 `json:"threshold_value,omitempty"`
	DeviceID       string   `json:"device_id,omitempty"`
	PublisherID    string   `json:"publisher_id,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
}

// CheckReading evaluates one sensor reading. When a threshold is broken
// the alert is persisted and mirrored on the bus; otherwise nil is
// returned without side effects.
func (s *Service) CheckReading(ctx context.Context, sensorType string, value float64, deviceID string) (*Alert, error) {
	a, violated := s.thresholds.Check(sensorType, value)
	if !violated {
		return nil, nil
	}

	a.DeviceID = deviceID
	a.Timestamp = time.Now().UTC()

	if err := s.repo.Insert(ctx, &a); err != nil {
		return nil, fmt.Errorf("saving %s alert: %w", a.Type, err)
	}

	s.logger.Warn("alert created",
		"alert_type", a.Type,
		"severity", a.Severity,
		"message", a.Message,
	)

	s.publish(&a)
	return &a, nil
}

// HandleBusMessage ingests one alert-channel message. It satisfies
// realtime.Handler and never returns an error; malformed payloads are
// dropped and logged.
func (s *Service) HandleBusMessage(channel string, payload []byte) error {
	var msg busAlert
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("malformed alert message dropped",
			"channel", channel,
			"error", err,
		)
		return nil
	}
	if msg.Type != "alert" {
		s.logger.Debug("non-alert message on alert channel ignored", "type", msg.Type)
		return nil
	}
	if msg.PublisherID != "" && msg.PublisherID == s.clientID {
		// Own mirror looping back through the broker.
		return nil
	}

	a := alertFromBus(msg)

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, a); err != nil {
		s.logger.Error("saving bus alert failed",
			"alert_type", a.Type,
			"error", err,
		)
		return nil
	}

	s.logger.Warn("alert ingested from bus",
		"alert_type", a.Type,
		"severity", a.Severity,
		"device_id", a.DeviceID,
	)
	return nil
}

// List returns alerts newest first, narrowed by the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	return s.repo.List(ctx, filter)
}

// Counts returns the total and unresolved alert counts.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return s.repo.Counts(ctx)
}

// Resolve marks an alert resolved on behalf of resolvedBy.
func (s *Service) Resolve(ctx context.Context, id int64, resolvedBy string) (*Alert, error) {
	a, err := s.repo.Resolve(ctx, id, resolvedBy)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("alert resolved", "id", id, "resolved_by", a.ResolvedBy)
	return a, nil
}

// publish mirrors a new alert on the bus. Best effort: a down bus only
// delays dashboards, the alert is already persisted.
func (s *Service) publish(a *Alert) {
	if s.bus == nil {
		return
	}
	msg := busAlert{
		Type:           "alert",
		AlertType:      a.Type,
		Severity:       string(a.Severity),
		Title:          a.Title,
		Message:        a.Message,
		SensorType:     a.SensorType,
		Value:          a.SensorValue,
		ThresholdValue: a.ThresholdValue,
		DeviceID:       a.DeviceID,
		PublisherID:    s.clientID,
		Timestamp:      a.Timestamp.Format(time.RFC3339),
	}
	if err := s.bus.PublishJSON(s.alertChannel, msg); err != nil {
		s.logger.Warn("alert broadcast failed",
			"alert_type", a.Type,
			"error", err,
		)
	}
}

// alertFromBus maps a bus message to an alert record, filling the gaps a
// sparse publisher leaves.
func alertFromBus(msg busAlert) *Alert {
	alertType := msg.AlertType
	if alertType == "" {
		sensor := msg.SensorType
		if sensor == "" {
			sensor = "unknown"
		}
		alertType = "ALERT_" + strings.ToUpper(sensor)
	}

	severity := Severity(msg.Severity)
	if severity == "" {
		severity = SeverityInfo
	}

	title := msg.Title
	if title == "" {
		title = titleFor(alertType)
	}

	timestamp := time.Now().UTC()
	if msg.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			timestamp = ts.UTC()
		}
	}

	return &Alert{
		Timestamp:      timestamp,
		Type:           alertType,
		Severity:       severity,
		Title:          title,
		Message:        msg.Message,
		SensorType:     msg.SensorType,
		SensorValue:    msg.Value,
		ThresholdValue: msg.ThresholdValue,
		DeviceID:       msg.DeviceID,
	}
}
