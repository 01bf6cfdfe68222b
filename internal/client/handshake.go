package client

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/omochice/termchat/internal/config"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// dial opens the stream and performs the upgrade handshake. The returned
// reader holds any bytes the server sent after its response.
func dial(ctx context.Context, ep config.Endpoint, tlsConfig *tls.Config) (net.Conn, *bufio.Reader, error) {
	netDialer := &net.Dialer{}
	var (
		conn net.Conn
		err  error
	)
	if ep.TLS() {
		cfg := &tls.Config{}
		if tlsConfig != nil {
			cfg = tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = ep.Host
		}
		d := &tls.Dialer{NetDialer: netDialer, Config: cfg}
		conn, err = d.DialContext(ctx, "tcp", ep.Address())
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", ep.Address())
	}
	if err != nil {
		return nil, nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	br, err := handshake(conn, ep)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, errors.Wrap(ctxErr, err.Error())
		}
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return nil, nil, errors.Wrap(context.DeadlineExceeded, err.Error())
		}
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, br, nil
}

func handshake(conn net.Conn, ep config.Endpoint) (*bufio.Reader, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, "http://"+ep.Address()+ep.Path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upgrade request")
	}
	req.Host = ep.HostHeader()
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", key)

	if err := req.Write(conn); err != nil {
		return nil, errors.Wrap(err, "failed to write upgrade request")
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upgrade response")
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrHandshakeRejected, "server answered %s", resp.Status)
	}
	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != "" && accept != acceptKey(key) {
		return nil, errors.Wrap(ErrHandshakeRejected, "bad Sec-WebSocket-Accept")
	}
	if upgrade := resp.Header.Get("Upgrade"); upgrade != "" && !strings.EqualFold(upgrade, "websocket") {
		return nil, errors.Wrapf(ErrHandshakeRejected, "server upgraded to %q", upgrade)
	}
	return br, nil
}

func newKey() (string, error) {
	var p [16]byte
	if _, err := rand.Read(p[:]); err != nil {
		return "", errors.Wrap(err, "failed to generate handshake key")
	}
	return base64.StdEncoding.EncodeToString(p[:]), nil
}

func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
