package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omochice/termchat/internal/eventbus"
	"github.com/omochice/termchat/pkg/protocol"
)

var (
	// ErrAlreadyJoined is returned by Join after the room has been joined.
	ErrAlreadyJoined = errors.New("already joined a room")
	// ErrMissingField is wrapped by handlers receiving a payload without a required field.
	ErrMissingField = errors.New("missing required field")
)

// Sender writes one outbound event to the server.
type Sender interface {
	Send(event string, payload any) error
}

// Router translates inbound protocol events into UI events, and UI events
// into outbound protocol events. It owns the room's Registry.
type Router struct {
	sender   Sender
	bus      *eventbus.Bus
	registry *Registry
	routes   protocol.Routes
	logger   zerolog.Logger

	mu     sync.Mutex
	joined bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger.With().Str("component", "router").Logger()
	}
}

// WithRegistry makes the router track presence in reg instead of a fresh Registry.
func WithRegistry(reg *Registry) RouterOption {
	return func(r *Router) {
		r.registry = reg
	}
}

// NewRouter creates a Router that sends through sender and publishes on bus.
func NewRouter(sender Sender, bus *eventbus.Bus, opts ...RouterOption) *Router {
	r := &Router{
		sender: sender,
		bus:    bus,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = NewRegistry()
	}

	r.routes = protocol.Routes{
		protocol.EventUserConnected:    r.userConnected,
		protocol.EventNewUserConnected: r.userConnected,
		protocol.EventUserDisconnected: r.userDisconnected,
		protocol.EventDisconnectUser:   r.userDisconnected,
		protocol.EventUpdateUsers:      r.updateUsers,
		protocol.EventMessage:          r.message,
	}
	return r
}

// Routes returns the inbound dispatch table.
func (r *Router) Routes() protocol.Routes {
	routes := make(protocol.Routes, len(r.routes))
	for name, h := range r.routes {
		routes[name] = h
	}
	return routes
}

// Users returns the users currently present in the room.
func (r *Router) Users() []protocol.User {
	return r.registry.Users()
}

// Join announces the local user to the room, then starts forwarding
// MESSAGE_SENT events to the server. It may succeed only once.
func (r *Router) Join(join protocol.JoinRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.joined {
		return ErrAlreadyJoined
	}
	if err := r.sender.Send(protocol.EventJoinRoom, join); err != nil {
		return errors.Wrap(err, "failed to join room")
	}
	r.joined = true

	r.bus.Subscribe(EventMessageSent, r.messageSent)
	r.logger.Info().Str("room", join.RoomID).Str("user", join.UserName).Msg("Joined room")
	return nil
}

func (r *Router) messageSent(payload any) error {
	text, ok := payload.(string)
	if !ok {
		return fmt.Errorf("%s: unexpected payload type %T", EventMessageSent, payload)
	}
	return r.sender.Send(protocol.EventSendMessage, text)
}

func (r *Router) userConnected(raw json.RawMessage) error {
	user, err := decodeUser(raw)
	if err != nil {
		return errors.Wrap(err, "user-connected")
	}
	r.registry.Set(user.ID, user.UserName)

	r.publishStatus()
	r.bus.Publish(EventActivityLogUpdated, user.UserName+" joined!")
	return nil
}

func (r *Router) userDisconnected(raw json.RawMessage) error {
	user, err := decodeUser(raw)
	if err != nil {
		return errors.Wrap(err, "user-disconnected")
	}
	r.registry.Remove(user.ID)

	r.bus.Publish(EventActivityLogUpdated, user.UserName+" left!")
	r.publishStatus()
	return nil
}

func (r *Router) updateUsers(raw json.RawMessage) error {
	users, err := decodeUserList(raw)
	if err != nil {
		return errors.Wrap(err, "updateUsers")
	}
	for _, u := range users {
		if u.ID == "" {
			r.logger.Warn().Str("user", u.UserName).Msg("Skipping snapshot entry without id")
			continue
		}
		r.registry.Set(u.ID, u.UserName)
	}
	r.publishStatus()
	return nil
}

func (r *Router) message(raw json.RawMessage) error {
	var msg struct {
		UserName string  `json:"userName"`
		Message  *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errors.Wrap(err, "message: invalid payload")
	}
	if msg.UserName == "" {
		return errors.Wrap(ErrMissingField, "message: userName")
	}
	if msg.Message == nil {
		return errors.Wrap(ErrMissingField, "message: message")
	}
	r.bus.Publish(EventMessageReceived, protocol.ChatMessage{UserName: msg.UserName, Message: *msg.Message})
	return nil
}

func (r *Router) publishStatus() {
	r.bus.Publish(EventStatusUpdated, r.registry.Names())
}

func decodeUser(raw json.RawMessage) (protocol.User, error) {
	var u protocol.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return u, errors.Wrap(err, "invalid payload")
	}
	if u.ID == "" {
		return u, errors.Wrap(ErrMissingField, "id")
	}
	if u.UserName == "" {
		return u, errors.Wrap(ErrMissingField, "userName")
	}
	return u, nil
}

// decodeUserList accepts a JSON array of users, or an object whose values
// are users keyed by id. Document order is preserved in both forms.
func decodeUserList(raw json.RawMessage) ([]protocol.User, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.Wrap(ErrMissingField, "users")
	}

	switch raw[0] {
	case '[':
		var users []protocol.User
		if err := json.Unmarshal(raw, &users); err != nil {
			return nil, errors.Wrap(err, "invalid user list")
		}
		return users, nil
	case '{':
		return decodeUserObject(raw)
	default:
		return nil, errors.Errorf("invalid user list: %s", raw)
	}
}

func decodeUserObject(raw json.RawMessage) ([]protocol.User, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "invalid user map")
	}

	var users []protocol.User
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "invalid user map")
		}
		key, _ := tok.(string)

		var u protocol.User
		if err := dec.Decode(&u); err != nil {
			return nil, errors.Wrapf(err, "invalid user %q", key)
		}
		if u.ID == "" {
			u.ID = key
		}
		users = append(users, u)
	}
	return users, nil
}
