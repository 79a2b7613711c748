// Package api provides the HTTP REST API and WebSocket server for the
// smart home backend.
//
// It exposes device control and status, sensor reading queries, alert
// management, and system health to user interfaces (wall panels, web
// dashboard). WebSocket clients receive live sensor, alert, and device
// state events relayed from the realtime bus.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Error responses use the {"error": "message"} wire shape the panel
// clients parse.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
