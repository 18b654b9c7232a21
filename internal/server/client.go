// Package server manages individual relay connections, handling read/write
// pumps, the hello handshake, message dispatch, and lifecycle control.
package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents one live relay connection. It owns the websocket
// connection, the outbound send channel, and the connection-local
// authentication flag; the associated PlayerState lives in the hub's
// Registry. The uuid tags log lines for correlation across goroutines.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	id             uuid.UUID
	closed         bool
	authenticated  atomic.Bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client instance with the provided websocket
// connection, hub reference, and remote address. The client's send channel is
// buffered to handle event queuing.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		id:             uuid.New(),
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// GetSendChan returns the client's send channel for reading outgoing events.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	// Check for expected close scenarios
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Connection %s disconnected: %v", c.id, err)
		return true
	}

	// Check for network errors
	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Connection %s closed: %v", c.id, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes and dispatches one inbound payload. It returns false
// when the connection must be force-closed (failed authentication); every
// other failure mode leaves the connection open.
func (c *Client) processMessage(rawMessage []byte) bool {
	msg, err := DecodeClientMessage(rawMessage)
	if err != nil {
		if !errors.Is(err, ErrUnknownMessageType) {
			log.Printf("Invalid message from %s: %v", c.addr, err)
		}
		return true
	}

	if !c.authenticated.Load() {
		hello, ok := msg.(HelloMessage)
		if !ok {
			// Anything before the hello is silently ignored.
			return true
		}
		return c.handleHello(hello)
	}

	// The registry entry may already be gone if the hub dropped us
	// mid-dispatch; such messages are silently ignored.
	state, ok := c.hub.Registry().Lookup(c)
	if !ok {
		return true
	}

	switch m := msg.(type) {
	case StateMessage:
		updated, ok := c.hub.Registry().UpdateTransform(c, m.X, m.Y, m.Z, m.Yaw)
		if !ok {
			return true
		}
		c.hub.BroadcastExcept(NewStateEvent(updated), c)
	case BlockChangeMessage:
		c.hub.BroadcastExcept(NewBlockChangeEvent(m), c)
	case ChatMessage:
		c.hub.BroadcastExcept(NewPlayerChatEvent(state.ID, state.Name, m.Text), c)
	case HelloMessage:
		// Repeated hello after authentication is ignored.
	}
	return true
}

// handleHello runs the authentication gate. On success it registers the
// player and emits the welcome packet and join announcements; on a password
// mismatch it queues one error event and reports that the connection must be
// force-closed.
func (c *Client) handleHello(msg HelloMessage) bool {
	cfg := currentConfig()
	if cfg.Password != "" && subtle.ConstantTimeCompare([]byte(msg.Password), []byte(cfg.Password)) != 1 {
		log.Printf("Connection %s from %s failed authentication", c.id, c.addr)
		c.hub.SendTo(c, NewErrorEvent("invalid password"))
		return false
	}

	state, roster := c.hub.Registry().Register(c, msg.Name, msg.Team)
	log.Printf("Player %d (%s) joined on connection %s. Registered players: %d",
		state.ID, state.Name, c.id, len(roster))

	c.hub.SendTo(c, NewWelcomeEvent(state.ID, roster))
	c.hub.BroadcastExcept(NewJoinEvent(state), c)
	c.hub.BroadcastExcept(NewServerChatEvent(state.Name+" connected"), c)
	return true
}

func (c *Client) readPump() {
	// On a forced close the write pump owns the connection teardown so the
	// queued error event is flushed before the close frame goes out.
	forcedClose := false
	defer func() {
		c.hub.unregister <- c
		if !forcedClose {
			if err := c.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing connection in readPump: %v", err)
				}
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		if !c.processMessage(rawMessage) {
			forcedClose = true
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		// Only log unexpected connection close errors
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage processes outgoing events and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeTextMessage writes one serialized event as its own text frame. Events
// are never coalesced: every frame is a single self-contained JSON payload.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("Error writing message to %s: %v", c.addr, err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
