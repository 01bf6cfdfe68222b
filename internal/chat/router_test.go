package chat_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/eventbus"
	"github.com/omochice/termchat/pkg/protocol"
)

type sent struct {
	event   string
	payload any
}

// mockSender records every outbound event.
type mockSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (m *mockSender) Send(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sent{event: event, payload: payload})
	return nil
}

func (m *mockSender) Sent() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

type published struct {
	event   string
	payload any
}

func newTestRouter(t *testing.T) (*chat.Router, *mockSender, *eventbus.Bus, *[]published) {
	t.Helper()
	sender := &mockSender{}
	bus := eventbus.New()
	var events []published
	for _, name := range []string{chat.EventMessageReceived, chat.EventStatusUpdated, chat.EventActivityLogUpdated} {
		name := name
		bus.Subscribe(name, func(p any) error {
			events = append(events, published{event: name, payload: p})
			return nil
		})
	}
	return chat.NewRouter(sender, bus), sender, bus, &events
}

func dispatch(t *testing.T, r *chat.Router, line string) error {
	t.Helper()
	env, err := protocol.Decode([]byte(line))
	require.NoError(t, err)
	return r.Routes().Dispatch(env)
}

func TestRouter_UserConnected(t *testing.T) {
	r, _, _, events := newTestRouter(t)

	require.NoError(t, dispatch(t, r, `{"event":"user-connected","message":{"id":"u1","userName":"bob"}}`))

	assert.Equal(t, []published{
		{event: chat.EventStatusUpdated, payload: []string{"bob"}},
		{event: chat.EventActivityLogUpdated, payload: "bob joined!"},
	}, *events)
	assert.Equal(t, []protocol.User{{ID: "u1", UserName: "bob"}}, r.Users())
}

func TestRouter_UserConnectedAlias(t *testing.T) {
	r, _, _, events := newTestRouter(t)

	require.NoError(t, dispatch(t, r, `{"event":"newUserConnected","message":{"id":"u1","userName":"bob"}}`))
	assert.Len(t, *events, 2)
}

func TestRouter_UserConnectedOverwrite(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	require.NoError(t, dispatch(t, r, `{"event":"user-connected","message":{"id":"u1","userName":"bob"}}`))
	require.NoError(t, dispatch(t, r, `{"event":"user-connected","message":{"id":"u1","userName":"robert"}}`))

	assert.Equal(t, []protocol.User{{ID: "u1", UserName: "robert"}}, r.Users())
}

func TestRouter_UserDisconnected(t *testing.T) {
	r, _, _, events := newTestRouter(t)
	require.NoError(t, dispatch(t, r, `{"event":"user-connected","message":{"id":"u1","userName":"bob"}}`))
	require.NoError(t, dispatch(t, r, `{"event":"user-connected","message":{"id":"u2","userName":"eve"}}`))
	*events = nil

	require.NoError(t, dispatch(t, r, `{"event":"user-disconnected","message":{"id":"u1","userName":"bob"}}`))

	assert.Equal(t, []published{
		{event: chat.EventActivityLogUpdated, payload: "bob left!"},
		{event: chat.EventStatusUpdated, payload: []string{"eve"}},
	}, *events)
}

func TestRouter_UserDisconnectedUnknownID(t *testing.T) {
	r, _, _, events := newTestRouter(t)

	require.NoError(t, dispatch(t, r, `{"event":"disconnectUser","message":{"id":"ghost","userName":"casper"}}`))

	assert.Empty(t, r.Users())
	assert.Equal(t, []published{
		{event: chat.EventActivityLogUpdated, payload: "casper left!"},
		{event: chat.EventStatusUpdated, payload: []string{}},
	}, *events)
}

func TestRouter_UpdateUsers(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{
			name: "array snapshot",
			line: `{"event":"updateUsers","message":[{"id":"1","userName":"a"},{"id":"2","userName":"b"}]}`,
			want: []string{"a", "b"},
		},
		{
			name: "object snapshot keeps document order",
			line: `{"event":"updateUsers","message":{"z":{"userName":"zed"},"a":{"id":"a","userName":"amy"}}}`,
			want: []string{"zed", "amy"},
		},
		{
			name: "empty snapshot",
			line: `{"event":"updateUsers","message":[]}`,
			want: []string{},
		},
		{
			name:    "scalar snapshot",
			line:    `{"event":"updateUsers","message":"nope"}`,
			wantErr: true,
		},
		{
			name:    "missing snapshot",
			line:    `{"event":"updateUsers"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _, events := newTestRouter(t)
			err := dispatch(t, r, tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, *events)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []published{{event: chat.EventStatusUpdated, payload: tt.want}}, *events)
		})
	}
}

func TestRouter_UpdateUsersMerges(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	require.NoError(t, dispatch(t, r, `{"event":"user-connected","message":{"id":"1","userName":"a"}}`))
	require.NoError(t, dispatch(t, r, `{"event":"updateUsers","message":[{"id":"2","userName":"b"},{"id":"1","userName":"a2"}]}`))

	assert.Equal(t, []protocol.User{{ID: "1", UserName: "a2"}, {ID: "2", UserName: "b"}}, r.Users())
}

func TestRouter_Message(t *testing.T) {
	r, _, _, events := newTestRouter(t)

	require.NoError(t, dispatch(t, r, `{"event":"message","message":{"userName":"bob","message":"  hi {there} "}}`))

	assert.Equal(t, []published{
		{event: chat.EventMessageReceived, payload: protocol.ChatMessage{UserName: "bob", Message: "  hi {there} "}},
	}, *events)
}

func TestRouter_MissingFields(t *testing.T) {
	lines := []string{
		`{"event":"user-connected","message":{"userName":"bob"}}`,
		`{"event":"user-connected","message":{"id":"1"}}`,
		`{"event":"user-disconnected","message":{"userName":"bob"}}`,
		`{"event":"message","message":{"message":"orphan"}}`,
		`{"event":"message","message":{"userName":"bob"}}`,
		`{"event":"message","message":{"userName":"bob","message":null}}`,
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			r, _, _, events := newTestRouter(t)
			err := dispatch(t, r, line)
			assert.True(t, errors.Is(err, chat.ErrMissingField), "got %v", err)
			assert.Empty(t, *events)
			assert.Empty(t, r.Users())
		})
	}
}

func TestRouter_UnknownEvent(t *testing.T) {
	r, _, _, events := newTestRouter(t)

	err := dispatch(t, r, `{"event":"typing","message":{}}`)

	var unknown *protocol.UnknownEventError
	assert.ErrorAs(t, err, &unknown)
	assert.Empty(t, *events)
}

func TestRouter_RoutesIsExplicit(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	assert.ElementsMatch(t, []string{
		"user-connected", "newUserConnected",
		"user-disconnected", "disconnectUser",
		"updateUsers", "message",
	}, r.Routes().Events())

	// mutating the copy leaves the router untouched
	routes := r.Routes()
	delete(routes, "message")
	assert.Contains(t, r.Routes().Events(), "message")
}

func TestRouter_Join(t *testing.T) {
	r, sender, bus, _ := newTestRouter(t)

	bus.Publish(chat.EventMessageSent, "too early")
	assert.Empty(t, sender.Sent(), "nothing is forwarded before joining")

	join := protocol.JoinRoom{RoomID: "lobby", UserName: "alice"}
	require.NoError(t, r.Join(join))
	bus.Publish(chat.EventMessageSent, "hi")

	assert.Equal(t, []sent{
		{event: protocol.EventJoinRoom, payload: join},
		{event: protocol.EventSendMessage, payload: "hi"},
	}, sender.Sent())
}

func TestRouter_JoinOnce(t *testing.T) {
	r, sender, bus, _ := newTestRouter(t)
	join := protocol.JoinRoom{RoomID: "lobby", UserName: "alice"}

	require.NoError(t, r.Join(join))
	assert.ErrorIs(t, r.Join(join), chat.ErrAlreadyJoined)

	bus.Publish(chat.EventMessageSent, "hi")
	assert.Len(t, sender.Sent(), 2, "one JOIN_ROOM and exactly one MESSAGE")
}

func TestRouter_JoinSendFailure(t *testing.T) {
	sender := &mockSender{err: errors.New("not open")}
	r := chat.NewRouter(sender, eventbus.New())

	err := r.Join(protocol.JoinRoom{RoomID: "lobby", UserName: "alice"})
	assert.Error(t, err)
}

func TestRouter_MessageSentWrongType(t *testing.T) {
	r, sender, bus, _ := newTestRouter(t)
	require.NoError(t, r.Join(protocol.JoinRoom{RoomID: "r", UserName: "u"}))

	bus.Publish(chat.EventMessageSent, 42)
	assert.Len(t, sender.Sent(), 1)
}

func TestRouter_WithRegistry(t *testing.T) {
	reg := chat.NewRegistry()
	r := chat.NewRouter(&mockSender{}, eventbus.New(), chat.WithRegistry(reg))

	require.NoError(t, r.Routes().Dispatch(protocol.Envelope{
		Event:   protocol.EventUserConnected,
		Message: json.RawMessage(`{"id":"1","userName":"a"}`),
	}))
	assert.Equal(t, 1, reg.Len())
}
