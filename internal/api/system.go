package api

import (
	"context"
	"net/http"
	"time"
)

// componentCheckTimeout bounds each backing-component health check.
const componentCheckTimeout = 2 * time.Second

// handleSystemHealth reports the health of every backing component.
// The endpoint always answers 200; the status field carries the verdict
// so dashboards can render partial outages.
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true

	check := func(name string, hc HealthChecker) {
		if hc == nil {
			components[name] = "disabled"
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
			return
		}
		components[name] = "ok"
	}

	check("database", s.dbHealth)
	check("timeseries", s.influxHealth)
	check("bus", s.busHealth)

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           s.version,
		"components":        components,
		"websocket_clients": clients,
	})
}
