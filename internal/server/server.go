// Package server implements a chat room server speaking the termchat wire
// protocol: an HTTP upgrade handshake followed by newline-delimited JSON.
package server

import (
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omochice/termchat/pkg/protocol"
)

// ErrServerStopped is returned by Start after Stop.
var ErrServerStopped = errors.New("server stopped")

const outgoingBuffer = 32

// Server accepts chat clients and relays their events within rooms.
type Server struct {
	address  string
	listener net.Listener
	hub      *Hub
	conns    map[net.Conn]bool
	peers    map[*peer]bool
	upgrader ws.Upgrader
	logger   zerolog.Logger
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With().Str("component", "server").Logger()
	}
}

// New creates a Server that will listen on address.
func New(address string, opts ...Option) *Server {
	s := &Server{
		address: address,
		conns:   make(map[net.Conn]bool),
		peers:   make(map[*peer]bool),
		logger:  zerolog.Nop(),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	s.upgrader = ws.Upgrader{
		OnRequest: func(uri []byte) error {
			s.logger.Debug().Bytes("uri", uri).Msg("Upgrade requested")
			return nil
		},
	}
	return s
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrap(err, "failed to start server")
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		listener.Close()
		return ErrServerStopped
	default:
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Server started")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return ErrServerStopped
			default:
				s.logger.Warn().Err(err).Msg("Failed to accept connection")
				continue
			}
		}

		if !s.trackConn(conn) {
			conn.Close()
			return ErrServerStopped
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Stop closes the listener and every client connection, then waits for
// their goroutines to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Addr returns the server's listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of upgraded connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// RoomCount returns the number of non-empty rooms.
func (s *Server) RoomCount() int {
	return s.hub.RoomCount()
}

// MemberCount returns the number of joined peers in room.
func (s *Server) MemberCount(room string) int {
	return s.hub.MemberCount(room)
}

// handleConnection upgrades conn and serves it until it closes.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(conn)

	isHTTP, reader, err := detectHTTP(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Dropping connection")
		conn.Close()
		return
	}
	if !isHTTP {
		s.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Rejecting non-HTTP connection")
		conn.Close()
		return
	}

	bc := &bufferedConn{Conn: conn, reader: reader}
	if _, err := s.upgrader.Upgrade(bc); err != nil {
		s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("Failed to upgrade connection")
		conn.Close()
		return
	}

	p := &peer{
		id:       uuid.NewString(),
		conn:     conn,
		outgoing: make(chan []byte, outgoingBuffer),
	}
	s.mu.Lock()
	s.peers[p] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.writeLoop(p)

	s.readLoop(p, bc)
	s.drop(p)
}

// trackConn records conn so Stop can close it. It fails once the server is stopping.
func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.conns[conn] = true
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// drop removes p from its room, tells the room, and releases its connection.
func (s *Server) drop(p *peer) {
	if s.hub.leave(p) {
		id, name, room := p.identity()
		s.logger.Info().Str("user", name).Str("room", room).Msg("User left")
		s.broadcast(room, protocol.EventUserDisconnected, protocol.User{ID: id, UserName: name}, nil)
	}

	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()

	close(p.outgoing)
	p.conn.Close()
}

func (s *Server) writeLoop(p *peer) {
	defer s.wg.Done()
	for data := range p.outgoing {
		if _, err := p.conn.Write(data); err != nil {
			s.logger.Warn().Err(err).Str("peer", p.id).Msg("Failed to write to client")
			p.conn.Close()
			return
		}
	}
}

func (s *Server) readLoop(p *peer, r io.Reader) {
	splitter := protocol.Splitter{
		Overflow: func(n int) {
			s.logger.Warn().Int("bytes", n).Str("peer", p.id).Msg("Dropping oversized frame")
		},
	}
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range splitter.Feed(buf[:n]) {
				s.handleLine(p, line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Str("peer", p.id).Msg("Error reading from client")
			}
			return
		}
	}
}

func (s *Server) handleLine(p *peer, line []byte) {
	env, err := protocol.Decode(line)
	if err != nil {
		s.logger.Warn().Err(err).Str("peer", p.id).Msg("Failed to decode message")
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		s.handleJoin(p, env)
	case protocol.EventSendMessage:
		s.handleMessage(p, env)
	default:
		s.logger.Info().Str("event", env.Event).Str("peer", p.id).Msg("Ignoring unknown event")
	}
}

func (s *Server) handleJoin(p *peer, env protocol.Envelope) {
	if p.joined() {
		s.logger.Warn().Str("peer", p.id).Msg("Ignoring second JOIN_ROOM")
		return
	}
	var join protocol.JoinRoom
	if err := env.Payload(&join); err != nil {
		s.logger.Warn().Err(err).Str("peer", p.id).Msg("Invalid JOIN_ROOM")
		return
	}
	if join.RoomID == "" || join.UserName == "" {
		s.logger.Warn().Str("peer", p.id).Msg("JOIN_ROOM without room or user name")
		return
	}

	p.setIdentity(join.UserName, join.RoomID)
	users := s.hub.join(p)
	s.logger.Info().Str("user", join.UserName).Str("room", join.RoomID).Int("members", len(users)).Msg("User joined")

	s.send(p, protocol.EventUpdateUsers, users)
	s.broadcast(join.RoomID, protocol.EventUserConnected, protocol.User{ID: p.id, UserName: join.UserName}, p)
}

func (s *Server) handleMessage(p *peer, env protocol.Envelope) {
	_, name, room := p.identity()
	if room == "" {
		s.logger.Warn().Str("peer", p.id).Msg("MESSAGE before JOIN_ROOM")
		return
	}
	var text string
	if err := json.Unmarshal(env.Message, &text); err != nil {
		s.logger.Warn().Err(err).Str("peer", p.id).Msg("Invalid MESSAGE")
		return
	}
	s.broadcast(room, protocol.EventMessage, protocol.ChatMessage{UserName: name, Message: text}, nil)
}

func (s *Server) send(p *peer, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}
	select {
	case p.outgoing <- data:
	default:
		s.logger.Warn().Str("peer", p.id).Msg("Client channel full, skipping")
	}
}

func (s *Server) broadcast(room, event string, payload any, skip *peer) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}
	s.hub.broadcast(room, data, skip)
}
