// Package server defines the wire protocol shared by the relay and its
// clients: the tagged inbound message union and the outbound event records.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type discriminators used in the "type" field of every payload.
const (
	TypeHello       = "hello"
	TypeState       = "state"
	TypeBlockChange = "blockChange"
	TypeChat        = "chat"
	TypeWelcome     = "welcome"
	TypeError       = "error"
	TypeJoin        = "join"
	TypeLeave       = "leave"
)

// ServerChatName is the sender name attached to relay-originated chat
// announcements (connect/disconnect notices).
const ServerChatName = "Server"

// ErrUnknownMessageType is returned by DecodeClientMessage for payloads whose
// "type" field names no known message kind. Callers ignore these silently.
var ErrUnknownMessageType = errors.New("unknown message type")

// PlayerState holds everything the relay tracks about one authenticated
// player. The zero transform is replaced by the spawn point at registration.
type PlayerState struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Team string  `json:"team"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Yaw  float64 `json:"yaw"`
}

// HelloMessage is the first message a client must send: authentication plus
// initial identity. All fields are optional on the wire.
type HelloMessage struct {
	Password string `json:"password"`
	Name     string `json:"name"`
	Team     string `json:"team"`
}

// StateMessage carries a position update from the owning client.
type StateMessage struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// BlockChangeMessage carries a world edit. BlockType is relayed verbatim
// without interpretation, so it stays raw JSON.
type BlockChangeMessage struct {
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Z         float64         `json:"z"`
	BlockType json.RawMessage `json:"blockType"`
}

// ChatMessage carries a chat line from a client.
type ChatMessage struct {
	Text string `json:"text"`
}

// messageEnvelope is used to peek at the discriminator before decoding the
// full payload.
type messageEnvelope struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses a raw inbound payload into one of the concrete
// client message types. Malformed JSON yields a decode error; a well-formed
// payload with an unrecognized type yields ErrUnknownMessageType.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding message envelope: %w", err)
	}

	switch envelope.Type {
	case TypeHello:
		var msg HelloMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding hello message: %w", err)
		}
		return msg, nil
	case TypeState:
		var msg StateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding state message: %w", err)
		}
		return msg, nil
	case TypeBlockChange:
		var msg BlockChangeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding blockChange message: %w", err)
		}
		return msg, nil
	case TypeChat:
		var msg ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding chat message: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, envelope.Type)
	}
}

// WelcomeEvent is sent once to a newly authenticated connection. Players
// includes the receiver's own just-registered state.
type WelcomeEvent struct {
	Type    string        `json:"type"`
	ID      int           `json:"id"`
	Players []PlayerState `json:"players"`
}

// ErrorEvent is sent to a connection that failed authentication, immediately
// before the relay closes it.
type ErrorEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// JoinEvent announces a newly authenticated player to everyone else.
type JoinEvent struct {
	Type   string      `json:"type"`
	Player PlayerState `json:"player"`
}

// LeaveEvent announces a departed player to everyone remaining.
type LeaveEvent struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

// StateEvent relays one player's position update to everyone else.
type StateEvent struct {
	Type string  `json:"type"`
	ID   int     `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Yaw  float64 `json:"yaw"`
}

// BlockChangeEvent relays a world edit to everyone else, verbatim. A message
// that carried no blockType at all relays without the field; an explicit null
// stays an explicit null.
type BlockChangeEvent struct {
	Type      string          `json:"type"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Z         float64         `json:"z"`
	BlockType json.RawMessage `json:"blockType,omitempty"`
}

// ChatEvent relays a chat line. Relay-originated announcements use
// ServerChatName and omit the id.
type ChatEvent struct {
	Type string `json:"type"`
	ID   *int   `json:"id,omitempty"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// NewWelcomeEvent builds the handshake response for a freshly assigned id and
// roster snapshot.
func NewWelcomeEvent(id int, players []PlayerState) WelcomeEvent {
	return WelcomeEvent{Type: TypeWelcome, ID: id, Players: players}
}

// NewErrorEvent builds an authentication failure notice.
func NewErrorEvent(text string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Text: text}
}

// NewJoinEvent builds a join announcement carrying the new player's state.
func NewJoinEvent(player PlayerState) JoinEvent {
	return JoinEvent{Type: TypeJoin, Player: player}
}

// NewLeaveEvent builds a leave announcement for a departed player.
func NewLeaveEvent(id int) LeaveEvent {
	return LeaveEvent{Type: TypeLeave, ID: id}
}

// NewStateEvent builds a position relay event from a player's current state.
func NewStateEvent(state PlayerState) StateEvent {
	return StateEvent{Type: TypeState, ID: state.ID, X: state.X, Y: state.Y, Z: state.Z, Yaw: state.Yaw}
}

// NewBlockChangeEvent builds a world edit relay event from the inbound
// message, untouched.
func NewBlockChangeEvent(msg BlockChangeMessage) BlockChangeEvent {
	return BlockChangeEvent{Type: TypeBlockChange, X: msg.X, Y: msg.Y, Z: msg.Z, BlockType: msg.BlockType}
}

// NewPlayerChatEvent builds a chat relay event attributed to a player.
func NewPlayerChatEvent(id int, name, text string) ChatEvent {
	return ChatEvent{Type: TypeChat, ID: &id, Name: name, Text: text}
}

// NewServerChatEvent builds a relay-originated chat announcement.
func NewServerChatEvent(text string) ChatEvent {
	return ChatEvent{Type: TypeChat, Name: ServerChatName, Text: text}
}
