package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/termchat/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{raw: "", want: zerolog.InfoLevel, wantOK: false},
		{raw: "DEBUG", want: zerolog.DebugLevel, wantOK: true},
		{raw: " warning ", want: zerolog.WarnLevel, wantOK: true},
		{raw: "off", want: zerolog.Disabled, wantOK: true},
		{raw: "none", want: zerolog.Disabled, wantOK: true},
		{raw: "disabled", want: zerolog.Disabled, wantOK: true},
		{raw: "trace", want: zerolog.TraceLevel, wantOK: true},
		{raw: "fatal", want: zerolog.FatalLevel, wantOK: true},
		{raw: "loud", want: zerolog.InfoLevel, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := logging.ParseLevel(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNew_File(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "chat.log")

	logger, closer := logging.New(logging.Options{File: path, Level: "warn"})
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_EnvOverride(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "debug")
	var buf bytes.Buffer

	logger, closer := logging.New(logging.Options{Console: &buf, Level: "error"})
	defer closer.Close()
	logger.Debug().Msg("debugging")

	assert.Contains(t, buf.String(), "debugging")
}
