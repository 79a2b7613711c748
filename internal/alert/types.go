package alert

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no alert exists with the requested ID.
	ErrNotFound = errors.New("alert: not found")

	// ErrAlreadyResolved indicates a resolve request for an alert that
	// was already resolved.
	ErrAlreadyResolved = errors.New("alert: already resolved")
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one recorded threshold violation or device-reported problem.
type Alert struct {
	ID             int64      `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Type           string     `json:"alert_type"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	SensorType     string     `json:"sensor_type,omitempty"`
	SensorValue    *float64   `json:"sensor_value,omitempty"`
	ThresholdValue *float64   `json:"threshold_value,omitempty"`
	DeviceID       string     `json:"device_id,omitempty"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
}

// ListFilter narrows a List query.
type ListFilter struct {
	// Resolved filters by resolution status when non-nil.
	Resolved *bool

	// Limit caps the number of returned alerts, newest first.
	// Zero means the default of 50.
	Limit int
}

// defaultListLimit applies when ListFilter.Limit is zero.
const defaultListLimit = 50

// Counts summarises the alert table for dashboards.
type Counts struct {
	Total      int `json:"total"`
	Unresolved int `json:"unresolved"`
}
