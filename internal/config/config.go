// Package config holds the client settings assembled from flags and an optional TOML file.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	DefaultHostURI          = "http://localhost:9898"
	DefaultHandshakeTimeout = 10 * time.Second
)

// ErrMissingField is wrapped by Validate for every required setting left empty.
var ErrMissingField = errors.New("missing required setting")

// Config is the full client configuration.
type Config struct {
	Username         string
	Room             string
	HostURI          string
	HandshakeTimeout time.Duration
	LogFile          string
	LogLevel         string
	Plain            bool
}

// Default returns a Config with every optional setting filled in.
func Default() Config {
	return Config{
		HostURI:          DefaultHostURI,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

type fileConfig struct {
	Username         string `toml:"username"`
	Room             string `toml:"room"`
	HostURI          string `toml:"host_uri"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	LogFile          string `toml:"log_file"`
	LogLevel         string `toml:"log_level"`
	Plain            bool   `toml:"plain"`
}

// LoadFile overlays the settings defined in the TOML file at path onto cfg.
// Keys absent from the file leave cfg unchanged.
func LoadFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}

	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("room") {
		cfg.Room = strings.TrimSpace(raw.Room)
	}
	if meta.IsDefined("host_uri") {
		cfg.HostURI = strings.TrimSpace(raw.HostURI)
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse handshake_timeout")
		}
		cfg.HandshakeTimeout = d
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("plain") {
		cfg.Plain = raw.Plain
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Validate checks the settings required before connecting.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(c.Room) == "" {
		missing = append(missing, "room")
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrMissingField, strings.Join(missing, ", "))
	}
	if c.HandshakeTimeout <= 0 {
		return errors.Errorf("handshake timeout must be positive, got %s", c.HandshakeTimeout)
	}
	if _, err := ParseHostURI(c.HostURI); err != nil {
		return err
	}
	return nil
}

// Endpoint returns the parsed host URI.
func (c Config) Endpoint() (Endpoint, error) {
	return ParseHostURI(c.HostURI)
}
