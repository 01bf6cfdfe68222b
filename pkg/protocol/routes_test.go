package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/termchat/pkg/protocol"
)

func TestRoutes_Dispatch(t *testing.T) {
	var got []string
	routes := protocol.Routes{
		"a": func(m json.RawMessage) error {
			got = append(got, "a:"+string(m))
			return nil
		},
		"b": func(json.RawMessage) error {
			return errors.New("boom")
		},
	}

	require.NoError(t, routes.Dispatch(protocol.Envelope{Event: "a", Message: json.RawMessage(`"x"`)}))
	assert.Equal(t, []string{`a:"x"`}, got)

	assert.EqualError(t, routes.Dispatch(protocol.Envelope{Event: "b"}), "boom")

	err := routes.Dispatch(protocol.Envelope{Event: "c"})
	var unknown *protocol.UnknownEventError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "c", unknown.Event)
	assert.Equal(t, []string{`a:"x"`}, got)
}

func TestRoutes_Events(t *testing.T) {
	routes := protocol.Routes{"x": nil, "y": nil}
	assert.ElementsMatch(t, []string{"x", "y"}, routes.Events())
}
