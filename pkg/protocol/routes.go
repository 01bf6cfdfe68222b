package protocol

import (
	"encoding/json"
	"fmt"
)

// Handler processes the payload of one inbound event.
type Handler func(message json.RawMessage) error

// Routes maps event names to their handlers. Tables are built once by the
// owner and never looked up by method name at runtime.
type Routes map[string]Handler

// UnknownEventError is returned by Dispatch for events with no registered handler.
type UnknownEventError struct {
	Event string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q", e.Event)
}

// Dispatch invokes the handler registered for env.Event.
func (r Routes) Dispatch(env Envelope) error {
	h, ok := r[env.Event]
	if !ok {
		return &UnknownEventError{Event: env.Event}
	}
	return h(env.Message)
}

// Events returns the registered event names.
func (r Routes) Events() []string {
	events := make([]string, 0, len(r))
	for name := range r {
		events = append(events, name)
	}
	return events
}
