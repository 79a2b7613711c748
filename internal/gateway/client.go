package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/statesync"
)

// defaultTimeout applies when Config.Timeout is zero.
const defaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read for the message.
const maxErrorBody = 4 * 1024

// Config holds the settings for a control API client.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:5000". A
	// trailing slash is tolerated.
	BaseURL string

	// Timeout bounds each request. Defaults to ten seconds. Callers that
	// need a tighter bound pass a context deadline.
	Timeout time.Duration

	// HTTPClient overrides the underlying client, mainly for tests.
	// When nil a client with Timeout is used.
	HTTPClient *http.Client
}

// Client talks to the backend control API. It implements
// statesync.ControlGateway.
//
// Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a control API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}, nil
}

// commandRequest is the POST /api/control/{device} body.
type commandRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// commandResponse is the backend's answer to a successful command.
type commandResponse struct {
	Success    bool           `json:"success"`
	Device     string         `json:"device"`
	State      string         `json:"state"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// statusEntry is one device in the GET /api/control/status response.
type statusEntry struct {
	State      string         `json:"state"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// errorResponse is the backend's error body shape.
type errorResponse struct {
	Error string `json:"error"`
}

// SendCommand performs the authoritative write for one command and
// returns the state the backend settled on, which may differ from the
// requested one.
//
// Network failures return ErrTransport; an explicit backend refusal
// returns ErrBackendRejected. Neither is retried here.
func (c *Client) SendCommand(ctx context.Context, device, action string, parameters map[string]any) (statesync.ConfirmedState, error) {
	body, err := json.Marshal(commandRequest{Action: action, Parameters: parameters})
	if err != nil {
		return statesync.ConfirmedState{}, fmt.Errorf("gateway: encoding command: %w", err)
	}

	endpoint := c.baseURL + "/api/control/" + url.PathEscape(device)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return statesync.ConfirmedState{}, fmt.Errorf("gateway: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return statesync.ConfirmedState{}, fmt.Errorf("%w: %s %s: %v", ErrTransport, http.MethodPost, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statesync.ConfirmedState{}, c.rejectionError(resp)
	}

	var out commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return statesync.ConfirmedState{}, fmt.Errorf("%w: decoding command response: %v", ErrTransport, err)
	}
	if !out.Success {
		return statesync.ConfirmedState{}, fmt.Errorf("%w: command %s %s not applied", ErrBackendRejected, device, action)
	}

	return statesync.ConfirmedState{
		State:      out.State,
		Parameters: out.Parameters,
	}, nil
}

// QueryStatus fetches the authoritative state of every device.
func (c *Client) QueryStatus(ctx context.Context) (map[string]statesync.ConfirmedState, error) {
	endpoint := c.baseURL + "/api/control/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, http.MethodGet, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.rejectionError(resp)
	}

	var entries map[string]statusEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decoding status response: %v", ErrTransport, err)
	}

	status := make(map[string]statesync.ConfirmedState, len(entries))
	for name, entry := range entries {
		status[name] = statesync.ConfirmedState{
			State:      entry.State,
			Parameters: entry.Parameters,
		}
	}
	return status, nil
}

// rejectionError classifies a non-200 response, carrying the backend's
// message when one is present. 4xx means the backend understood the
// request and refused it, so the command was not applied. 5xx means the
// backend failed mid-request; the command may have partially taken
// effect, so it is treated like a transport failure and left to the
// fallback reconciliation.
func (c *Client) rejectionError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	sentinel := ErrBackendRejected
	if resp.StatusCode >= http.StatusInternalServerError {
		sentinel = ErrTransport
	}

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("%w: %s: %s", sentinel, resp.Status, body.Error)
	}
	return fmt.Errorf("%w: %s", sentinel, resp.Status)
}
