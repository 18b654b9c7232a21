// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the static asset server for the game client.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns a handler that upgrades requests and hands the
// resulting connections to the given hub. It validates that the request uses
// the GET method, upgrades the HTTP connection, creates a new Client
// instance, and registers it; the hub launches the client's read/write pumps.
func NewWebSocketHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, h, r.RemoteAddr)

		// Register the client with the hub; the hub will launch the pump
		// goroutines. A hub that has shut down no longer drains the register
		// channel, so the connection is closed instead of blocking forever.
		select {
		case h.register <- client:
		case <-h.ctx.Done():
			log.Printf("Rejecting connection from %s: hub is shut down", client.addr)
			if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing rejected connection from %s: %v", client.addr, err)
			}
		}
	}
}

// WebSocketHandler serves WebSocket upgrade requests against the process-wide
// hub.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	NewWebSocketHandler(hub)(w, r)
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the relay is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Aganor relay server is running!")
}

// StaticHandler serves the game client assets from the configured static
// directory. The directory is resolved per request so configuration changes
// take effect without restarting the mux.
func StaticHandler(w http.ResponseWriter, r *http.Request) {
	cfg := currentConfig()
	http.FileServer(http.Dir(cfg.StaticDir)).ServeHTTP(w, r)
}
