package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.withRequestID)
	r.Use(s.withRequestLog)
	r.Use(s.withRecovery)
	r.Use(s.withBodyLimit)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device control
		r.Route("/control", func(r chi.Router) {
			r.Get("/status", s.handleControlStatus)
			r.Post("/{device}", s.handleControlDevice)
		})

		// Sensor readings
		r.Route("/sensors", func(r chi.Router) {
			r.Get("/latest", s.handleLatestReadings)
			r.Get("/{type}/history", s.handleSensorHistory)
			r.Get("/{type}/stats", s.handleSensorStats)
		})
		r.Get("/stats/dashboard", s.handleDashboard)

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/{id}/resolve", s.handleResolveAlert)
		})

		r.Get("/system/health", s.handleSystemHealth)
	})

	// WebSocket event stream
	r.Get("/ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: s.cfg.CORS.AllowedMethods,
		AllowedHeaders: s.cfg.CORS.AllowedHeaders,
	})
	return c.Handler(r)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
