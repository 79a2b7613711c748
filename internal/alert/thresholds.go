package alert

import (
	"fmt"
	"strings"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/config"
)

// band holds the optional bounds for one sensor type. A nil bound means
// that direction never alerts.
type band struct {
	high *float64
	low  *float64
}

// Thresholds evaluates readings against the configured sensor bounds.
// The zero value alerts on nothing; build one with NewThresholds.
type Thresholds struct {
	bands map[string]band
}

// NewThresholds builds an evaluator from the alert configuration.
// Temperature and humidity alert in both directions, light only when it
// drops too low.
func NewThresholds(cfg config.AlertsConfig) Thresholds {
	return Thresholds{
		bands: map[string]band{
			"temperature": {high: &cfg.Temperature.High, low: &cfg.Temperature.Low},
			"humidity":    {high: &cfg.Humidity.High, low: &cfg.Humidity.Low},
			"light":       {low: &cfg.Light.Low},
		},
	}
}

// Check evaluates one reading. It returns the violation and true when the
// value breaks a bound; sensor types without configured bounds never
// violate. High violations are warnings, low ones informational.
//
// The returned Alert has no ID or timestamp; the caller stamps those when
// persisting.
func (t Thresholds) Check(sensorType string, value float64) (Alert, bool) {
	b, ok := t.bands[sensorType]
	if !ok {
		return Alert{}, false
	}

	switch {
	case b.high != nil && value > *b.high:
		return t.violation(sensorType, "HIGH", SeverityWarning, value, *b.high,
			fmt.Sprintf("%s %g exceeds threshold of %g", capitalize(sensorType), value, *b.high)), true
	case b.low != nil && value < *b.low:
		return t.violation(sensorType, "LOW", SeverityInfo, value, *b.low,
			fmt.Sprintf("%s %g below threshold of %g", capitalize(sensorType), value, *b.low)), true
	}
	return Alert{}, false
}

func (t Thresholds) violation(sensorType, direction string, severity Severity, value, bound float64, message string) Alert {
	alertType := direction + "_" + strings.ToUpper(sensorType)
	return Alert{
		Type:           alertType,
		Severity:       severity,
		Title:          titleFor(alertType),
		Message:        message,
		SensorType:     sensorType,
		SensorValue:    &value,
		ThresholdValue: &bound,
	}
}

// titleFor turns "HIGH_TEMPERATURE" into "High Temperature".
func titleFor(alertType string) string {
	words := strings.Split(strings.ToLower(alertType), "_")
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
