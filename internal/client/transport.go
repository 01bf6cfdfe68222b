// Package client implements the socket transport to the chat server: an HTTP
// upgrade handshake followed by newline-delimited JSON envelopes.
package client

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/pkg/protocol"
)

// State is the lifecycle stage of a Transport.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateErrored:
		return "ERRORED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// FrameHandler receives every decoded inbound envelope, in stream order, on
// the transport's read goroutine.
type FrameHandler func(protocol.Envelope)

// Transport owns one connection to the chat server. It is used for a single
// session and never reconnects.
type Transport struct {
	endpoint         config.Endpoint
	handshakeTimeout time.Duration
	tlsConfig        *tls.Config
	logger           zerolog.Logger

	conn    net.Conn
	state   State
	// abortConnect cancels an in-flight dial or handshake.
	abortConnect context.CancelFunc
	handler FrameHandler
	err     error
	mu      sync.RWMutex

	writeMu  sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger.With().Str("component", "transport").Logger()
	}
}

// WithHandshakeTimeout bounds dialing plus the upgrade handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.handshakeTimeout = d
	}
}

// WithTLSConfig sets the TLS configuration used for https and wss endpoints.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// New creates a Transport for endpoint. No connection is made until Connect.
func New(endpoint config.Endpoint, opts ...Option) *Transport {
	t := &Transport{
		endpoint:         endpoint,
		handshakeTimeout: config.DefaultHandshakeTimeout,
		logger:           zerolog.Nop(),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnFrame sets the handler for inbound envelopes. It may be called before or
// after Connect; frames arriving with no handler are dropped.
func (t *Transport) OnFrame(h FrameHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Route dispatches inbound envelopes through routes. Unknown events and
// handler failures are logged and do not affect the connection.
func (t *Transport) Route(routes protocol.Routes) {
	t.OnFrame(func(env protocol.Envelope) {
		err := routes.Dispatch(env)
		if err == nil {
			return
		}
		var unknown *protocol.UnknownEventError
		if errors.As(err, &unknown) {
			t.logger.Info().Str("event", env.Event).Msg("Ignoring unknown event")
			return
		}
		t.logger.Warn().Err(err).Str("event", env.Event).Msg("Failed to handle event")
	})
}

// Connect dials the server and performs the upgrade handshake. On success
// the transport is open and reading. Any failure is a *ConnectionError.
func (t *Transport) Connect(ctx context.Context) error {
	addr := t.endpoint.Address()

	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return &ConnectionError{Addr: addr, Err: ErrAlreadyStarted}
	}
	t.state = StateConnecting
	dialCtx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
	t.abortConnect = cancel
	t.mu.Unlock()
	defer cancel()

	t.logger.Debug().Str("endpoint", t.endpoint.String()).Msg("Connecting")

	conn, br, err := dial(dialCtx, t.endpoint, t.tlsConfig)
	if err != nil {
		if closed := t.finish(StateErrored, err); closed {
			t.logger.Debug().Str("addr", addr).Msg("Connect interrupted by Close")
			return &ConnectionError{Addr: addr, Err: ErrClosed}
		}
		t.logger.Error().Err(err).Str("addr", addr).Msg("Connection failed")
		return &ConnectionError{Addr: addr, Err: err}
	}

	t.mu.Lock()
	t.abortConnect = nil
	if t.state != StateConnecting {
		t.mu.Unlock()
		conn.Close()
		t.closeDone()
		return &ConnectionError{Addr: addr, Err: ErrClosed}
	}
	t.conn = conn
	t.state = StateOpen
	t.mu.Unlock()

	t.logger.Info().Str("addr", addr).Msg("Connected to server")

	t.wg.Add(1)
	go t.readLoop(conn, br)
	return nil
}

// Send writes one envelope as a single line. It fails with *SendError when
// the transport is not open or the write fails; a failed write ends the session.
func (t *Transport) Send(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return &SendError{Event: event, Err: err}
	}

	t.mu.RLock()
	conn, state := t.conn, t.state
	t.mu.RUnlock()

	if state != StateOpen {
		return &SendError{Event: event, Err: ErrNotOpen}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := conn.Write(data); err != nil {
		t.abort(err)
		return &SendError{Event: event, Err: err}
	}
	return nil
}

// Close ends the session. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	prev := t.state
	if prev == StateClosed {
		t.mu.Unlock()
		return nil
	}
	t.state = StateClosed
	conn := t.conn
	abortConnect := t.abortConnect
	t.abortConnect = nil
	t.mu.Unlock()

	if abortConnect != nil {
		abortConnect()
	}
	if prev == StateIdle {
		t.closeDone()
	}
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "failed to close connection")
	}
	return nil
}

// Wait blocks until the read goroutine has exited.
func (t *Transport) Wait() {
	<-t.done
	t.wg.Wait()
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Done is closed once the session has ended.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the session, or nil after a clean close
// or end of stream.
func (t *Transport) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

func (t *Transport) readLoop(conn net.Conn, r io.Reader) {
	defer t.wg.Done()

	splitter := protocol.Splitter{
		Overflow: func(n int) {
			t.logger.Warn().Int("bytes", n).Msg("Dropping oversized frame")
		},
	}
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range splitter.Feed(buf[:n]) {
				t.deliver(line)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				t.logger.Info().Msg("Server closed the connection")
				t.finish(StateClosed, nil)
			case t.State() == StateClosed:
				t.finish(StateClosed, nil)
			default:
				t.logger.Error().Err(err).Msg("Error reading from server")
				t.finish(StateErrored, err)
			}
			conn.Close()
			return
		}
	}
}

func (t *Transport) deliver(line []byte) {
	env, err := protocol.Decode(line)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Dropping malformed frame")
		return
	}

	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()

	if h == nil {
		t.logger.Warn().Str("event", env.Event).Msg("No frame handler, dropping frame")
		return
	}
	h(env)
}

// abort records a write failure and closes the connection; the read loop
// then observes the closed stream and finishes the session.
func (t *Transport) abort(err error) {
	t.mu.Lock()
	if t.state == StateOpen {
		t.state = StateErrored
		t.err = err
	}
	conn := t.conn
	t.mu.Unlock()

	t.logger.Error().Err(err).Msg("Failed to write to server")
	conn.Close()
}

// finish moves the transport to Closed, passing through via when it is
// StateErrored, and records err as the cause. It reports whether Close had
// already ended the session.
func (t *Transport) finish(via State, err error) bool {
	t.mu.Lock()
	closed := t.state == StateClosed
	if !closed && via == StateErrored {
		t.state = StateErrored
	}
	if t.err == nil && t.state == StateErrored {
		t.err = err
	}
	t.state = StateClosed
	t.mu.Unlock()

	t.closeDone()
	return closed
}

func (t *Transport) closeDone() {
	t.doneOnce.Do(func() {
		close(t.done)
	})
}
