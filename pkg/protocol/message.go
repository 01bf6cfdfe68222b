// Package protocol defines the line-delimited JSON wire format spoken with the chat server.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Inbound events sent by the server.
const (
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventUpdateUsers      = "updateUsers"
	EventMessage          = "message"

	// Older servers announce presence changes under these names.
	EventNewUserConnected = "newUserConnected"
	EventDisconnectUser   = "disconnectUser"
)

// Outbound events sent by the client.
const (
	EventJoinRoom    = "JOIN_ROOM"
	EventSendMessage = "MESSAGE"
)

// Envelope is the single unit exchanged on the wire: {"event":..., "message":...}.
type Envelope struct {
	Event   string          `json:"event"`
	Message json.RawMessage `json:"message,omitempty"`
}

// User is a room member as identified by the server.
type User struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

// JoinRoom is the payload of JOIN_ROOM.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// ChatMessage is the payload of an inbound message event.
type ChatMessage struct {
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

// FrameDecodeError reports a line that could not be parsed into an Envelope.
type FrameDecodeError struct {
	Line []byte
	Err  error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame %q: %v", truncate(e.Line, 64), e.Err)
}

func (e *FrameDecodeError) Unwrap() error { return e.Err }

// ErrMissingEvent is wrapped by FrameDecodeError when the envelope has no event name.
var ErrMissingEvent = errors.New("envelope has no event")

// Encode marshals an event and payload into one newline-terminated line.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s payload", event)
	}
	data, err := json.Marshal(Envelope{Event: event, Message: raw})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}
	return append(data, '\n'), nil
}

// Decode parses one line (without its terminator) into an Envelope.
func Decode(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, &FrameDecodeError{Line: line, Err: err}
	}
	if env.Event == "" {
		return Envelope{}, &FrameDecodeError{Line: line, Err: ErrMissingEvent}
	}
	return env, nil
}

// Payload decodes the envelope message into v.
func (e Envelope) Payload(v any) error {
	if len(bytes.TrimSpace(e.Message)) == 0 {
		return errors.Errorf("%s: empty message", e.Event)
	}
	if err := json.Unmarshal(e.Message, v); err != nil {
		return errors.Wrapf(err, "%s: invalid message", e.Event)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
