package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/statesync"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without base URL: want error")
	}
}

func TestSendCommand_Success(t *testing.T) {
	var gotPath, gotAction string
	var gotParams map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		gotAction = req.Action
		gotParams = req.Parameters

		json.NewEncoder(w).Encode(commandResponse{
			Success:    true,
			Device:     "led",
			State:      "on",
			Parameters: map[string]any{"brightness": 90.0},
		})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	confirmed, err := client.SendCommand(context.Background(), "led", "on", map[string]any{"brightness": 80.0})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	if gotPath != "/api/control/led" {
		t.Errorf("path = %q, want /api/control/led", gotPath)
	}
	if gotAction != "on" {
		t.Errorf("action = %q, want on", gotAction)
	}
	if gotParams["brightness"] != 80.0 {
		t.Errorf("request brightness = %v, want 80", gotParams["brightness"])
	}
	if confirmed.State != "on" {
		t.Errorf("confirmed state = %q, want on", confirmed.State)
	}
	if confirmed.Parameters["brightness"] != 90.0 {
		t.Errorf("confirmed brightness = %v, want backend-reported 90", confirmed.Parameters["brightness"])
	}
}

func TestSendCommand_BackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{Error: "invalid action"})
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})

	_, err := client.SendCommand(context.Background(), "led", "explode", nil)
	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("error = %v, want ErrBackendRejected", err)
	}
	if got := err.Error(); !strings.Contains(got, "invalid action") {
		t.Errorf("error %q does not carry the backend message", got)
	}
}

func TestSendCommand_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client, _ := New(Config{BaseURL: srv.URL})

	_, err := client.SendCommand(context.Background(), "led", "on", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestSendCommand_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("::not json::"))
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})

	_, err := client.SendCommand(context.Background(), "led", "on", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestSendCommand_NotApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(commandResponse{Success: false})
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})

	_, err := client.SendCommand(context.Background(), "led", "on", nil)
	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("error = %v, want ErrBackendRejected", err)
	}
}

func TestQueryStatus_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/control/status" {
			t.Errorf("path = %q, want /api/control/status", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]statusEntry{
			"led":    {State: "on", Parameters: map[string]any{"brightness": 100.0}},
			"buzzer": {State: "off"},
		})
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})

	status, err := client.QueryStatus(context.Background())
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}

	want := map[string]statesync.ConfirmedState{
		"led":    {State: "on", Parameters: map[string]any{"brightness": 100.0}},
		"buzzer": {State: "off"},
	}
	if len(status) != len(want) {
		t.Fatalf("status = %v, want %v", status, want)
	}
	if status["led"].State != "on" || status["led"].Parameters["brightness"] != 100.0 {
		t.Errorf("led = %+v, want on/100", status["led"])
	}
	if status["buzzer"].State != "off" {
		t.Errorf("buzzer = %+v, want off", status["buzzer"])
	}
}

func TestQueryStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})

	_, err := client.QueryStatus(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

// A 500 means the backend died partway through: the command may already
// have reached the actuator before the failure, so the outcome is
// ambiguous and must be left to the fallback path, not reported as a
// definite refusal.
func TestSendCommand_ServerErrorIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{Error: "storing device state"})
	}))
	defer srv.Close()

	client, _ := New(Config{BaseURL: srv.URL})

	_, err := client.SendCommand(context.Background(), "led", "on", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if errors.Is(err, ErrBackendRejected) {
		t.Fatal("a 5xx must not be classified as a backend refusal")
	}
	if got := err.Error(); !strings.Contains(got, "storing device state") {
		t.Errorf("error %q does not carry the backend message", got)
	}
}

func TestSendCommand_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client, _ := New(Config{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SendCommand(ctx, "led", "on", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}
