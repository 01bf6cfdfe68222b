// Package logging builds the zerolog loggers used by the binaries.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "TERMCHAT_LOG_LEVEL"

// Options selects where and how much to log.
type Options struct {
	// File receives JSON lines, rotated by size. Ignored when Console is set.
	File string
	// Console receives human readable output instead of a file.
	Console io.Writer
	Level   string
}

// DefaultFile is the diagnostic log used while the terminal belongs to the UI.
func DefaultFile() string {
	return filepath.Join(os.TempDir(), "termchat.log")
}

// New returns a logger for opts and a closer for the underlying sink.
func New(opts Options) (zerolog.Logger, io.Closer) {
	level := zerolog.InfoLevel
	if lvl, ok := ParseLevel(opts.Level); ok {
		level = lvl
	}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	if opts.Console != nil {
		w = zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.Kitchen}
	} else {
		file := opts.File
		if file == "" {
			file = DefaultFile()
		}
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     14,
		}
		w, closer = rotator, rotator
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer
}

// ParseLevel maps a level name to a zerolog level, accepting zerolog's names
// plus "warning", "off" and "none". The second result is false for empty or
// unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return zerolog.InfoLevel, false
	case "warning":
		return zerolog.WarnLevel, true
	case "off", "none":
		return zerolog.Disabled, true
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel, false
	}
	return level, true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
