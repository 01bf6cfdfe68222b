package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/termchat/internal/client"
	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/config"
	"github.com/omochice/termchat/internal/eventbus"
	"github.com/omochice/termchat/internal/ui"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestRootCmd_MissingSettings(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no flags", args: nil},
		{name: "no room", args: []string{"--username", "alice"}},
		{name: "no username", args: []string{"--room", "lobby"}},
		{name: "bad host", args: []string{"--username", "alice", "--room", "lobby", "--hostUri", "ftp://x"}},
		{name: "missing config file", args: []string{"--config", filepath.Join(os.TempDir(), "termchat-missing.toml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(t, tt.args...)
			var usage *usageError
			assert.ErrorAs(t, err, &usage)
		})
	}
}

func TestRootCmd_MissingUsernameIsMissingField(t *testing.T) {
	err := execute(t, "--room", "lobby")
	assert.True(t, errors.Is(err, config.ErrMissingField))
}

func TestRootCmd_ConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = execute(t,
		"--username", "alice",
		"--room", "lobby",
		"--hostUri", "http://"+addr,
		"--plain",
		"--log-file", filepath.Join(t.TempDir(), "termchat.log"),
	)

	var connErr *client.ConnectionError
	require.ErrorAs(t, err, &connErr)
	var usage *usageError
	assert.False(t, errors.As(err, &usage))
}

func TestResolveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
username = "from-file"
room = "file-room"
handshake_timeout = "2s"
`), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--room", "flag-room", "--config", path}))

	flags := config.Default()
	flags.Room = "flag-room"
	cfg, err := resolveConfig(cmd, path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Username)
	assert.Equal(t, "flag-room", cfg.Room, "explicit flags win over the file")
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, config.DefaultHostURI, cfg.HostURI)
}

func TestProgramSink_ForwardsBusEvents(t *testing.T) {
	var got []tea.Msg
	bus := eventbus.New()
	ui.Bind(bus, programSink(func(msg tea.Msg) {
		got = append(got, msg)
	}))

	bus.Publish(chat.EventStatusUpdated, []string{"alice", "bob"})
	bus.Publish(chat.EventActivityLogUpdated, "bob joined!")

	require.Len(t, got, 2)
	assert.Equal(t, ui.StatusMsg{"alice", "bob"}, got[0])
	assert.Equal(t, ui.ActivityMsg("bob joined!"), got[1])
}
