// Package session wires the transport, router and event bus into one chat session.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/client"
	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/eventbus"
	"github.com/omochice/termchat/pkg/protocol"
)

// Session is a single connection to one chat room.
type Session struct {
	cfg       config.Config
	transport *client.Transport
	router    *chat.Router
	logger    zerolog.Logger
}

// New builds a session for cfg publishing UI events on bus. cfg must be valid.
func New(cfg config.Config, bus *eventbus.Bus, logger zerolog.Logger) (*Session, error) {
	ep, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	transport := client.New(ep,
		client.WithLogger(logger),
		client.WithHandshakeTimeout(cfg.HandshakeTimeout),
	)
	router := chat.NewRouter(transport, bus, chat.WithLogger(logger))

	return &Session{
		cfg:       cfg,
		transport: transport,
		router:    router,
		logger:    logger.With().Str("component", "session").Logger(),
	}, nil
}

// Start connects, installs the router's dispatch table and joins the room.
// A connection failure is returned as *client.ConnectionError.
func (s *Session) Start(ctx context.Context) error {
	s.transport.Route(s.router.Routes())

	if err := s.transport.Connect(ctx); err != nil {
		return err
	}

	join := protocol.JoinRoom{RoomID: s.cfg.Room, UserName: s.cfg.Username}
	if err := s.router.Join(join); err != nil {
		s.transport.Close()
		return err
	}
	return nil
}

// Users returns the users currently present in the room.
func (s *Session) Users() []protocol.User {
	return s.router.Users()
}

// State returns the transport state.
func (s *Session) State() client.State {
	return s.transport.State()
}

// Done is closed when the connection has ended.
func (s *Session) Done() <-chan struct{} {
	return s.transport.Done()
}

// Err returns the error that ended the connection, if any.
func (s *Session) Err() error {
	return s.transport.Err()
}

// Close ends the session and waits for the transport to stop reading.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.transport.Wait()
	s.logger.Debug().Msg("Session closed")
	return err
}
