package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/device"
	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/realtime"
)

// commandRequest is the body of POST /api/control/{device}.
type commandRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// commandResponse is the success body of POST /api/control/{device}.
type commandResponse struct {
	Success    bool           `json:"success"`
	Device     string         `json:"device"`
	State      string         `json:"state"`
	Parameters map[string]any `json:"parameters"`
}

// statusEntry is one device in the GET /api/control/status map.
type statusEntry struct {
	State      string         `json:"state"`
	Parameters map[string]any `json:"parameters"`
}

// handleControlDevice validates a command, relays it to the actuator over
// the bus, and persists the resulting state as the authoritative record.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "device")
	desc, ok := device.Lookup(name)
	if !ok {
		writeNotFound(w, "unknown device: "+name)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}

	params, err := device.ValidateCommand(desc.Kind, req.Action, req.Parameters)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	// Toggle needs the current state to pick its outcome.
	current := device.StateUnknown
	rec, err := s.devices.Get(r.Context(), name)
	switch {
	case err == nil:
		current = rec.State
	case !errors.Is(err, device.ErrNotFound):
		s.logger.Error("reading device state", "device", name, "error", err)
		writeInternalError(w, "reading device state")
		return
	}
	target := device.TargetState(desc.Kind, req.Action, current)

	now := time.Now().UTC()
	s.relayCommand(name, req.Action, target, params, now)

	if err := s.devices.Upsert(r.Context(), &device.Record{
		Name:      name,
		Kind:      desc.Kind,
		State:     target,
		Value:     params,
		UpdatedAt: now,
		UpdatedBy: "api",
	}); err != nil {
		s.logger.Error("storing device state", "device", name, "error", err)
		writeInternalError(w, "storing device state")
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(WSChannelDeviceState, statusEntry{State: target, Parameters: params})
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Success:    true,
		Device:     name,
		State:      target,
		Parameters: params,
	})
}

// relayCommand publishes the actuator command and the resulting state on
// the control channel. Best effort: the persisted record is authoritative
// and panels repair themselves from it when messages are lost.
func (s *Server) relayCommand(name, action, target string, params map[string]any, now time.Time) {
	if s.bus == nil {
		return
	}
	ts := now.Format(time.RFC3339)

	cmd := realtime.Envelope{
		Type:        realtime.TypeControlCommand,
		Device:      name,
		Action:      action,
		Parameters:  params,
		PublisherID: s.clientID,
		Timestamp:   ts,
	}
	if err := s.bus.PublishJSON(s.channels.Control, cmd); err != nil {
		s.logger.Warn("publishing control command failed",
			"device", name,
			"action", action,
			"error", err,
		)
	}

	update := realtime.Envelope{
		Type:        realtime.TypeStateUpdate,
		Device:      name,
		Action:      action,
		State:       target,
		Parameters:  params,
		PublisherID: s.clientID,
		Timestamp:   ts,
	}
	if err := s.bus.PublishJSON(s.channels.Control, update); err != nil {
		s.logger.Warn("publishing state update failed",
			"device", name,
			"error", err,
		)
	}
}

// handleControlStatus returns the current state of every device.
func (s *Server) handleControlStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing device states", "error", err)
		writeInternalError(w, "listing device states")
		return
	}

	status := make(map[string]statusEntry, len(records))
	for _, rec := range records {
		params := rec.Value
		if params == nil {
			params = map[string]any{}
		}
		status[rec.Name] = statusEntry{State: rec.State, Parameters: params}
	}
	writeJSON(w, http.StatusOK, status)
}
