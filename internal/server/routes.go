// Package server wires HTTP handlers into a ServeMux for the Aganor relay
// via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes. It sets up handlers for the WebSocket endpoint, the health check,
// and the static game client assets.
func SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", WebSocketHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/", StaticHandler)
	return mux
}
