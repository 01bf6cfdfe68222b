package config

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Endpoint is the chat server location derived from a host URI.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
	Path   string
}

// ParseHostURI splits a URI such as "https://chat.example.com:8443" into its
// parts. The port defaults from the scheme and a missing scheme means http.
func ParseHostURI(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, errors.Wrap(ErrMissingField, "host uri")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.Wrap(err, "invalid host uri")
	}

	ep := Endpoint{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Port:   u.Port(),
		Path:   u.EscapedPath(),
	}
	if ep.Host == "" {
		return Endpoint{}, errors.Errorf("invalid host uri %q: no host", raw)
	}

	switch ep.Scheme {
	case "http", "ws":
		if ep.Port == "" {
			ep.Port = "80"
		}
	case "https", "wss":
		if ep.Port == "" {
			ep.Port = "443"
		}
	default:
		return Endpoint{}, errors.Errorf("invalid host uri %q: unsupported scheme %q", raw, ep.Scheme)
	}
	if ep.Path == "" {
		ep.Path = "/"
	}
	return ep, nil
}

// Address returns host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// TLS reports whether the endpoint requires a TLS connection.
func (e Endpoint) TLS() bool {
	return e.Scheme == "https" || e.Scheme == "wss"
}

// HostHeader returns the value sent in the Host header of the handshake.
func (e Endpoint) HostHeader() string {
	if (e.Port == "80" && !e.TLS()) || (e.Port == "443" && e.TLS()) {
		return e.Host
	}
	return e.Address()
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Address() + e.Path
}
