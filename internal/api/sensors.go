package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/influxdb"
)

// Query parameter defaults.
const (
	defaultHistoryHours = 24
	defaultHistoryLimit = 100
)

// dashboardSensorTypes are the sensor types summarised by the dashboard.
var dashboardSensorTypes = []string{"temperature", "humidity", "light", "motion"}

// handleLatestReadings returns the most recent reading per sensor type.
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	if s.sensors == nil {
		writeServiceUnavailable(w, "time-series store unavailable")
		return
	}

	readings, err := s.sensors.LatestReadings(r.Context())
	if err != nil {
		s.sensorQueryError(w, "latest readings", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(readings),
		"sensors": readings,
	})
}

// handleSensorHistory returns readings of one sensor type over a window.
func (s *Server) handleSensorHistory(w http.ResponseWriter, r *http.Request) {
	if s.sensors == nil {
		writeServiceUnavailable(w, "time-series store unavailable")
		return
	}
	sensorType := chi.URLParam(r, "type")

	hours, ok := queryInt(w, r, "hours", defaultHistoryHours)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultHistoryLimit)
	if !ok {
		return
	}

	readings, err := s.sensors.History(r.Context(), sensorType, hours, limit)
	if err != nil {
		s.sensorQueryError(w, "sensor history", err)
		return
	}
	if readings == nil {
		readings = []influxdb.SensorReading{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_type": sensorType,
		"count":       len(readings),
		"readings":    readings,
	})
}

// handleSensorStats returns count/avg/min/max of one sensor type.
func (s *Server) handleSensorStats(w http.ResponseWriter, r *http.Request) {
	if s.sensors == nil {
		writeServiceUnavailable(w, "time-series store unavailable")
		return
	}
	sensorType := chi.URLParam(r, "type")

	hours, ok := queryInt(w, r, "hours", defaultHistoryHours)
	if !ok {
		return
	}

	stats, err := s.sensors.Stats(r.Context(), sensorType, hours)
	if err != nil {
		s.sensorQueryError(w, "sensor stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleDashboard returns per-sensor aggregates plus alert counts for the
// dashboard landing page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.sensors == nil {
		writeServiceUnavailable(w, "time-series store unavailable")
		return
	}

	hours, ok := queryInt(w, r, "hours", defaultHistoryHours)
	if !ok {
		return
	}

	sensors := make(map[string]influxdb.SensorStats, len(dashboardSensorTypes))
	for _, sensorType := range dashboardSensorTypes {
		stats, err := s.sensors.Stats(r.Context(), sensorType, hours)
		if err != nil {
			s.sensorQueryError(w, "dashboard stats", err)
			return
		}
		sensors[sensorType] = stats
	}

	resp := map[string]any{
		"period_hours": hours,
		"sensors":      sensors,
	}

	if s.alerts != nil {
		counts, err := s.alerts.Counts(r.Context())
		if err != nil {
			s.logger.Error("counting alerts", "error", err)
			writeInternalError(w, "counting alerts")
			return
		}
		resp["alerts"] = counts
	}

	writeJSON(w, http.StatusOK, resp)
}

// sensorQueryError maps a time-series failure to an HTTP response.
// A disconnected store is a 503, anything else a 500.
func (s *Server) sensorQueryError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("sensor query failed", "op", op, "error", err)
	if errors.Is(err, influxdb.ErrNotConnected) {
		writeServiceUnavailable(w, "time-series store unavailable")
		return
	}
	writeInternalError(w, "querying sensor data")
}

// queryInt parses an integer query parameter, writing a 400 response and
// returning ok=false when the value is not an integer.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, name+" must be an integer")
		return 0, false
	}
	return v, true
}
