package server

import (
	"bufio"
	"bytes"
	"net"
	"sync"

	"github.com/pkg/errors"
)

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
	[]byte("CONN"),
}

// detectHTTP peeks at the first bytes of conn and reports whether they start
// an HTTP request. The returned reader still holds the peeked bytes.
func detectHTTP(conn net.Conn) (bool, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)
	prefix, err := reader.Peek(4)
	if err != nil {
		return false, reader, errors.Wrap(err, "failed to peek connection")
	}
	for _, m := range httpMethods {
		if bytes.HasPrefix(prefix, m) {
			return true, reader, nil
		}
	}
	return false, reader, nil
}

// bufferedConn wraps a net.Conn with a bufio.Reader to preserve peeked data.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// peer is one upgraded connection.
type peer struct {
	id       string
	conn     net.Conn
	outgoing chan []byte

	mu       sync.RWMutex
	userName string
	room     string
}

func (p *peer) identity() (id, userName, room string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id, p.userName, p.room
}

func (p *peer) joined() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.room != ""
}

func (p *peer) setIdentity(userName, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userName = userName
	p.room = room
}
