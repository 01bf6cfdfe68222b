package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/omochice/termchat/internal/chat"
	"github.com/omochice/termchat/internal/eventbus"
)

// Plain is a line-oriented front end for terminals without cursor control
// and for piped input.
type Plain struct {
	bus *eventbus.Bus
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewPlain creates a Plain front end and binds it to bus.
func NewPlain(bus *eventbus.Bus, in io.Reader, out io.Writer) *Plain {
	p := &Plain{bus: bus, in: in, out: out}
	Bind(bus, p.render)
	return p
}

// Run publishes each input line as MESSAGE_SENT until input ends, the user
// types quit, or ctx is done.
//
// When the input is an io.Closer, Run closes it on return and waits for the
// reader goroutine to exit. Otherwise a Read blocked in the input outlives
// Run until the input yields data or fails.
func (p *Plain) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.println("Type your messages (or 'quit' to exit):")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	readerDone := make(chan struct{})
	if closer, ok := p.in.(io.Closer); ok {
		defer func() {
			cancel()
			closer.Close()
			<-readerDone
		}()
	}
	go func() {
		defer close(readerDone)
		defer close(lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return errors.Wrap(err, "failed to read input")
					}
				default:
				}
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if isQuit(text) {
				return nil
			}
			p.bus.Publish(chat.EventMessageSent, text)
		}
	}
}

func (p *Plain) render(msg any) {
	switch msg := msg.(type) {
	case ChatMsg:
		p.println(fmt.Sprintf("[%s]: %s", msg.UserName, msg.Message))
	case ActivityMsg:
		p.println(fmt.Sprintf("*** %s ***", string(msg)))
	case StatusMsg:
		p.println("users: " + strings.Join(msg, ", "))
	}
}

func (p *Plain) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func isQuit(text string) bool {
	switch text {
	case "quit", "exit", "/quit", "/exit":
		return true
	}
	return false
}
