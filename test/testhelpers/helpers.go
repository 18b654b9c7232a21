// Package testhelpers provides common utilities and helper functions for
// testing the Aganor relay server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests. It provides functions for creating test servers,
// dialing relay connections, speaking the relay protocol, and asserting
// response properties to reduce code duplication in test files.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL converts an httptest server base URL into the ws:// URL of the
// relay endpoint.
func WebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// An empty origin omits the Origin header, mimicking a native game client.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendHello sends a hello handshake message. Empty fields are omitted so the
// relay applies its defaults.
func SendHello(conn *websocket.Conn, password, name, team string) error {
	message := map[string]any{"type": "hello"}
	if password != "" {
		message["password"] = password
	}
	if name != "" {
		message["name"] = name
	}
	if team != "" {
		message["team"] = team
	}
	return conn.WriteJSON(message)
}

// SendState sends a position update message.
func SendState(conn *websocket.Conn, x, y, z, yaw float64) error {
	return conn.WriteJSON(map[string]any{
		"type": "state",
		"x":    x,
		"y":    y,
		"z":    z,
		"yaw":  yaw,
	})
}

// SendBlockChange sends a world edit message. blockType may be any
// JSON-encodable value; the relay forwards it verbatim.
func SendBlockChange(conn *websocket.Conn, x, y, z float64, blockType any) error {
	return conn.WriteJSON(map[string]any{
		"type":      "blockChange",
		"x":         x,
		"y":         y,
		"z":         z,
		"blockType": blockType,
	})
}

// SendChat sends a chat message.
func SendChat(conn *websocket.Conn, text string) error {
	return conn.WriteJSON(map[string]any{
		"type": "chat",
		"text": text,
	})
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveEvent reads one JSON event from the connection, waiting up to the
// given timeout. Every relay frame carries exactly one event.
func ReceiveEvent(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var event map[string]any
	err := conn.ReadJSON(&event)
	return event, err
}

// ReceiveEventOfType reads events until one with the wanted type arrives,
// failing the test if the timeout elapses first. Events of other types are
// discarded, which keeps tests robust against interleaved broadcasts.
func ReceiveEventOfType(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %q event", eventType)
		}
		event, err := ReceiveEvent(conn, remaining)
		if err != nil {
			t.Fatalf("Failed waiting for %q event: %v", eventType, err)
		}
		if EventType(event) == eventType {
			return event
		}
	}
}

// EventType extracts the type discriminator from a decoded event.
func EventType(event map[string]any) string {
	eventType, _ := event["type"].(string)
	return eventType
}

// EventID extracts the numeric id field from a decoded event.
func EventID(t *testing.T, event map[string]any) int {
	t.Helper()

	id, ok := event["id"].(float64)
	if !ok {
		t.Fatalf("Event has no numeric id field: %v", event)
	}
	return int(id)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
