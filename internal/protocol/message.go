// Package protocol defines the JSON frames exchanged over the hub's
// WebSocket endpoint.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Client → hub actions.
const (
	ActionJoin       = "join"
	ActionTyping     = "typing"
	ActionStopTyping = "stopTyping"
	ActionConfetti   = "confetti"
	ActionJumpscare  = "jumpscare"
	ActionGame       = "game"
)

// Hub → client event types.
const (
	EventPresenceList  = "presenceList"
	EventTypingList    = "typingList"
	EventConfetti      = "confetti"
	EventJumpscare     = "jumpscare"
	EventGame          = "game"
	EventNewMessage    = "newMessage"
	EventDeleteMessage = "deleteMessage"
	EventError         = "error"
)

// Inbound is a client frame. Only the fields relevant to Action are set.
type Inbound struct {
	Action   string          `json:"action"`
	Username string          `json:"username,omitempty"`
	Room     string          `json:"room,omitempty"`
	Secret   string          `json:"secret,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Event is a hub frame. Users is always emitted for list events so that an
// empty room serialises as [] rather than null.
type Event struct {
	Type      string          `json:"type"`
	Users     []string        `json:"users,omitempty"`
	Count     *int            `json:"count,omitempty"`
	Room      string          `json:"room,omitempty"`
	ID        int64           `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Global    bool            `json:"global,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	listEvent bool
}

// PresenceList builds the online-user event for a room.
func PresenceList(room string, users []string) Event {
	count := len(users)
	return Event{Type: EventPresenceList, Room: room, Users: nonNil(users), Count: &count, listEvent: true}
}

// TypingList builds the typing-user event for a room.
func TypingList(room string, users []string) Event {
	return Event{Type: EventTypingList, Room: room, Users: nonNil(users), listEvent: true}
}

// Effect builds a screen effect event.
func Effect(kind string, global bool) Event {
	return Event{Type: kind, Global: global}
}

// Game wraps an opaque game payload.
func Game(payload json.RawMessage) Event {
	return Event{Type: EventGame, Payload: payload}
}

// MessageNotice builds a newMessage or deleteMessage notification.
func MessageNotice(kind, room string, id int64) Event {
	return Event{Type: kind, Room: room, ID: id}
}

// Error builds a direct error reply.
func Error(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

// MarshalJSON keeps list events' users as [] when empty.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire Event
	if !e.listEvent {
		return marshal(wire(e))
	}
	return marshal(struct {
		wire
		Users []string `json:"users"`
	}{wire: wire(e), Users: nonNil(e.Users)})
}

// Encode serialises an event for the wire. Game payloads keep their bytes:
// '<', '>' and '&' are not rewritten to \u escapes.
func Encode(e Event) ([]byte, error) {
	data, err := marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Decode parses a client frame.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	if in.Action == "" {
		return Inbound{}, fmt.Errorf("frame has no action")
	}
	return in, nil
}

func nonNil(users []string) []string {
	if users == nil {
		return []string{}
	}
	return users
}
