// Package transport provides a line-based development transport. Production
// deployments bring their own supervisor.Transport implementation for the
// actual messaging protocol.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/supervisor"
)

// Console bridges a line stream to the supervisor. Each input line
// "counterpart: text" becomes an inbound text event; replies are written
// back prefixed with the counterpart. Lines without a counterpart prefix
// use the default counterpart.
type Console struct {
	in     io.Reader
	logger log.Logger

	// DefaultCounterpart receives lines without a "name:" prefix.
	DefaultCounterpart string

	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console transport.
func NewConsole(in io.Reader, out io.Writer, logger log.Logger) *Console {
	return &Console{
		in:                 in,
		out:                out,
		logger:             logger.With("component", "transport.console"),
		DefaultCounterpart: "console",
	}
}

// Connect reads lines until the stream ends or ctx is cancelled. After EOF
// the link stays up, idle, so the supervisor does not reconnect a drained
// stream in a loop.
func (c *Console) Connect(ctx context.Context, conn model.Connection, onUp func(), handler func(supervisor.Event)) error {
	// The console has no handshake; the link is up as soon as it reads.
	onUp()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				c.logger.Debug("input stream ended, link stays idle", "connection", conn.ID)
				<-ctx.Done()
				return ctx.Err()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			counterpart := c.DefaultCounterpart
			text := line
			if i := strings.Index(line, ":"); i > 0 {
				counterpart = strings.TrimSpace(line[:i])
				text = strings.TrimSpace(line[i+1:])
			}

			handler(supervisor.Event{
				Counterpart: counterpart,
				ContentType: model.ContentText,
				Text:        text,
				Timestamp:   time.Now(),
			})
		}
	}
}

// Disconnect is a no-op; the console has no link-level state.
func (c *Console) Disconnect(string) error { return nil }

// Send writes the reply to the output stream.
func (c *Console) Send(_ context.Context, connectionID, counterpart, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.out, "[%s → %s]\n%s\n", connectionID, counterpart, text); err != nil {
		return fmt.Errorf("transport: write reply: %w", err)
	}
	return nil
}
