// Package eventbus provides a synchronous, in-process publish/subscribe bus.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives the payload of a published event.
type Handler func(payload any) error

// Bus delivers each published event to its subscribers, in subscription
// order, on the publisher's goroutine.
type Bus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for handler failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger.With().Str("component", "eventbus").Logger()
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]Handler),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for event. Handlers for the same event run in the
// order they were subscribed.
func (b *Bus) Subscribe(event string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], h)
}

// HasSubscribers reports whether any handler is registered for event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event]) > 0
}

// Publish runs every handler for event before returning. Handler errors and
// panics are logged and do not stop the remaining handlers.
func (b *Bus) Publish(event string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug().Str("event", event).Msg("No subscribers for event")
		return
	}

	for i, h := range handlers {
		if err := b.invoke(h, payload); err != nil {
			b.logger.Error().Err(err).Str("event", event).Int("handler", i).Msg("Event handler failed")
		}
	}
}

func (b *Bus) invoke(h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(payload)
}
