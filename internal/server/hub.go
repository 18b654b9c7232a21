// Package server coordinates connection registration, event fan-out, and
// session cleanup for the Aganor relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub owns the set of live connections and routes outbound events to them.
// It pairs the transport-level connection set with the session Registry and
// ensures thread-safe operations through mutex protection.
type Hub struct {
	registry   *Registry
	clients    map[*Client]bool
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with an empty session
// registry and all necessary channels. The returned Hub is ready to manage
// relay connections once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   NewRegistry(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the hub's session registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// GetRegisterChan returns the channel used for registering new connections.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering connections.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// BroadcastExcept serializes the event once and delivers it to every
// authenticated connection except the excluded one. Pass nil to exclude
// nobody. Connections that have closed since are skipped, never an error.
func (h *Hub) BroadcastExcept(event any, except *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to serialize broadcast event: %v", err)
		return
	}

	select {
	case h.broadcast <- BroadcastMessage{Sender: except, Payload: payload}:
	case <-h.ctx.Done():
	}
}

// SendTo serializes the event and delivers it only to the given connection,
// used for welcome packets and authentication failure notices. Delivery to a
// closed connection is silently skipped.
func (h *Hub) SendTo(client *Client, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to serialize event for connection %s: %v", client.id, err)
		return
	}
	h.safeSend(client, payload)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling connection registration,
// unregistration, and event fan-out. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Connection %s accepted from %s. Total connections: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)

		case broadcastMsg := <-h.broadcast:
			h.handleBroadcast(broadcastMsg)
		}
	}
}

var hub = NewHub()

// dropClient removes a connection from the hub and, if it carried an
// authenticated session, announces the departure to everyone remaining.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	// Close the channel after releasing the lock
	close(client.send)
	log.Printf("Connection %s from %s closed. Total connections: %d", client.id, client.addr, clientCount)

	state, ok := h.registry.Unregister(client)
	if !ok {
		// Never authenticated: nobody was told it joined, nobody is told it left.
		return
	}
	log.Printf("Player %d (%s) left. Registered players: %d", state.ID, state.Name, h.registry.Count())
	h.emitBroadcast(NewLeaveEvent(state.ID), nil)
	h.emitBroadcast(NewServerChatEvent(state.Name+" disconnected"), nil)
}

// emitBroadcast fans an event out directly, bypassing the broadcast channel.
// Only the Run goroutine may call it.
func (h *Hub) emitBroadcast(event any, except *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to serialize broadcast event: %v", err)
		return
	}
	h.handleBroadcast(BroadcastMessage{Sender: except, Payload: payload})
}

// handleBroadcast fans a serialized event out to every authenticated
// connection except the sender.
func (h *Hub) handleBroadcast(broadcastMsg BroadcastMessage) {
	clients := h.getClientSnapshot()

	clientsToRemove := h.broadcastToClients(clients, broadcastMsg)
	h.removeFailedClients(clientsToRemove)
}

// getClientSnapshot returns a thread-safe snapshot of all current connections
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// broadcastToClients sends the payload to every authenticated connection
// except the sender and returns the clients whose send buffers were full.
func (h *Hub) broadcastToClients(clients []*Client, broadcastMsg BroadcastMessage) []*Client {
	var clientsToRemove []*Client

	for _, client := range clients {
		if broadcastMsg.Sender != nil && client == broadcastMsg.Sender {
			continue
		}
		if !client.authenticated.Load() {
			// Connections still waiting on their hello receive nothing.
			continue
		}
		if !h.safeSend(client, broadcastMsg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	return clientsToRemove
}

// removeFailedClients drops connections that failed to receive an event,
// closes their channels, and announces their departure.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var failed []*Client
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			failed = append(failed, client)
			log.Printf("Connection %s from %s removed due to full send buffer", client.id, client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, client := range failed {
		close(client.send)
		if state, ok := h.registry.Unregister(client); ok {
			h.emitBroadcast(NewLeaveEvent(state.ID), nil)
			h.emitBroadcast(NewServerChatEvent(state.Name+" disconnected"), nil)
		}
	}
}

// shutdownClients gracefully closes all active connections
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all relay connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing connection %s from %s: %v", client.id, client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d relay connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all connections are closed and goroutines have
// finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
