// Package ui renders chat events in the terminal and turns user input into
// MESSAGE_SENT events.
package ui

import (
	"fmt"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/eventbus"
	"github.com/omochice/termchat/pkg/protocol"
)

// ChatMsg is a message received in the room.
type ChatMsg protocol.ChatMessage

// StatusMsg lists the users present in the room, in order.
type StatusMsg []string

// ActivityMsg is one activity log line, such as "bob joined!".
type ActivityMsg string

// SessionEndedMsg reports that the connection ended. Err is nil for a clean close.
type SessionEndedMsg struct {
	Err error
}

// Bind subscribes to the UI-facing events on bus and hands each one to sink
// as a ChatMsg, StatusMsg or ActivityMsg.
func Bind(bus *eventbus.Bus, sink func(any)) {
	bus.Subscribe(chat.EventMessageReceived, func(payload any) error {
		msg, ok := payload.(protocol.ChatMessage)
		if !ok {
			return fmt.Errorf("%s: unexpected payload type %T", chat.EventMessageReceived, payload)
		}
		sink(ChatMsg(msg))
		return nil
	})
	bus.Subscribe(chat.EventStatusUpdated, func(payload any) error {
		names, ok := payload.([]string)
		if !ok {
			return fmt.Errorf("%s: unexpected payload type %T", chat.EventStatusUpdated, payload)
		}
		sink(StatusMsg(names))
		return nil
	})
	bus.Subscribe(chat.EventActivityLogUpdated, func(payload any) error {
		line, ok := payload.(string)
		if !ok {
			return fmt.Errorf("%s: unexpected payload type %T", chat.EventActivityLogUpdated, payload)
		}
		sink(ActivityMsg(line))
		return nil
	})
}
