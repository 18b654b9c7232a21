package integration

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agare87900/aganor/internal/server"
	"github.com/agare87900/aganor/test/testhelpers"
	"github.com/gorilla/websocket"
)

// TestGracefulShutdown verifies that an idle hub shuts down cleanly.
func TestGracefulShutdown(t *testing.T) {
	relayHub := server.NewHub()
	go relayHub.Run()

	time.Sleep(50 * time.Millisecond)

	if err := relayHub.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Hub shutdown failed: %v", err)
	}
}

// TestGracefulShutdownWithClients verifies that authenticated connections are
// closed when the hub shuts down.
func TestGracefulShutdownWithClients(t *testing.T) {
	server.SetConfig(server.NewConfig())
	t.Cleanup(func() { server.SetConfig(nil) })

	relayHub := server.NewHub()
	go relayHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.NewWebSocketHandler(relayHub))
	testServer := httptest.NewServer(mux)
	defer testServer.Close()

	wsURL := testhelpers.WebSocketURL(testServer.URL)

	const numClients = 5
	conns := make([]*websocket.Conn, 0, numClients)
	for i := 0; i < numClients; i++ {
		conn, _ := dialAndJoin(t, wsURL, "", "", "")
		conns = append(conns, conn)
	}
	time.Sleep(100 * time.Millisecond)

	if err := relayHub.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	closedClients := 0
	for i, conn := range conns {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			closedClients++
		} else {
			t.Errorf("Client %d still connected after shutdown", i)
		}
	}
	if closedClients != numClients {
		t.Errorf("Expected %d clients to be closed, got %d", numClients, closedClients)
	}
}

// TestShutdownTimeout verifies that shutdown respects its timeout.
func TestShutdownTimeout(t *testing.T) {
	relayHub := server.NewHub()
	go relayHub.Run()

	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	err := relayHub.Shutdown(100 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("Shutdown took too long: %v", elapsed)
	}
	if err != nil {
		t.Logf("Shutdown returned error (may be expected with short timeout): %v", err)
	}
}

// TestConcurrentShutdown verifies that multiple shutdown calls are safe.
func TestConcurrentShutdown(t *testing.T) {
	relayHub := server.NewHub()
	go relayHub.Run()

	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relayHub.Shutdown(2 * time.Second); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Logf("Shutdown error: %v", err)
	}
}

// TestConnectionsAfterShutdownAreClosed verifies that upgrades arriving after
// the hub has stopped are promptly closed rather than left hanging on the
// register handoff.
func TestConnectionsAfterShutdownAreClosed(t *testing.T) {
	server.SetConfig(server.NewConfig())
	t.Cleanup(func() { server.SetConfig(nil) })

	relayHub := server.NewHub()
	go relayHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.NewWebSocketHandler(relayHub))
	testServer := httptest.NewServer(mux)
	defer testServer.Close()

	if err := relayHub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	conn, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(testServer.URL), "")
	if err != nil {
		// The upgrade itself may already fail once the hub is gone.
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected connection to be closed after hub shutdown")
	}
}

// TestHTTPServerShutdown verifies that the HTTP server drains cleanly while a
// hub keeps running.
func TestHTTPServerShutdown(t *testing.T) {
	server.SetConfig(server.NewConfig())
	t.Cleanup(func() { server.SetConfig(nil) })

	relayHub := server.NewHub()
	go relayHub.Run()
	defer func() {
		if err := relayHub.Shutdown(2 * time.Second); err != nil {
			t.Logf("Hub shutdown error: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.NewWebSocketHandler(relayHub))
	httpServer := server.CreateServer("127.0.0.1:0", mux)

	testServer := httptest.NewUnstartedServer(mux)
	testServer.Config = httpServer
	testServer.Start()
	defer testServer.Close()

	if err := server.ShutdownServer(httpServer, 2*time.Second); err != nil {
		t.Errorf("HTTP server shutdown failed: %v", err)
	}
}
