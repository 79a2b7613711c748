package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/alert"
)

// resolveRequest is the body of POST /api/alerts/{id}/resolve.
type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// handleListAlerts returns alerts newest first, optionally filtered by
// resolution status via ?resolved=true|false and capped via ?limit=N.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeServiceUnavailable(w, "alert store unavailable")
		return
	}

	var filter alert.ListFilter
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "resolved must be true or false")
			return
		}
		filter.Resolved = &resolved
	}

	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	filter.Limit = limit

	alerts, err := s.alerts.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing alerts", "error", err)
		writeInternalError(w, "listing alerts")
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// handleResolveAlert marks one alert resolved. The body is optional; an
// absent resolved_by is attributed to "user".
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeServiceUnavailable(w, "alert store unavailable")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid alert id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = "user"
	}

	resolved, err := s.alerts.Resolve(r.Context(), id, req.ResolvedBy)
	switch {
	case errors.Is(err, alert.ErrNotFound):
		writeNotFound(w, "alert not found")
		return
	case errors.Is(err, alert.ErrAlreadyResolved):
		writeConflict(w, "alert already resolved")
		return
	case err != nil:
		s.logger.Error("resolving alert", "id", id, "error", err)
		writeInternalError(w, "resolving alert")
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(WSChannelAlerts, resolved)
	}

	writeJSON(w, http.StatusOK, resolved)
}
