// Package cli adapts a local stdin/stdout REPL to the channels.Channel
// interface (§1: CLI is one of the four supported transports). It exists to
// exercise the full agent turn without any external service, and is what
// `goclaw chat` drives for local testing.
//
// Unlike the network channels, CLI talks to the agent loop directly through
// ProcessDirect rather than round-tripping through the bus: "cli" is an
// internal channel (internal/channels.IsInternalChannel), so the outbound
// dispatch loop never delivers to it, and a synchronous request/response is
// the natural shape for a REPL anyway.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
)

const (
	// ChatID is the single synthetic chat every CLI turn is addressed to.
	ChatID   = "local"
	SenderID = "cli-user"
)

// ProcessFunc runs one turn of agent conversation and returns its reply.
type ProcessFunc func(ctx context.Context, content string) (string, error)

// Channel reads lines from stdin, runs each one through process, and prints
// the reply. There is exactly one "chat" (ChatID) per process.
type Channel struct {
	*channels.BaseChannel

	process ProcessFunc
	in      *bufio.Scanner
	out     *bufio.Writer
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// New creates a CLI channel reading from stdin and writing to stdout, using
// process to run each line as an agent turn.
func New(router bus.MessageRouter, process ProcessFunc) *Channel {
	return newWithIO(router, process, os.Stdin, os.Stdout)
}

// newWithIO builds a Channel against arbitrary reader/writer, used directly
// by tests so they don't have to fake the process's real stdin/stdout.
func newWithIO(router bus.MessageRouter, process ProcessFunc, r io.Reader, w io.Writer) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("cli", router, nil),
		process:     process,
		in:          bufio.NewScanner(r),
		out:         bufio.NewWriter(w),
		done:        make(chan struct{}),
	}
}

// Start begins the read loop on its own goroutine, prompting for input on
// stdout and running each non-empty line as an agent turn.
func (c *Channel) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.readLoop()
	c.SetRunning(true)
	return nil
}

// Stop cancels the read loop. Stdin reads can't be interrupted directly, so
// the read loop exits once the pending Scan call returns.
func (c *Channel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	return nil
}

// Done returns a channel closed once the read loop exits (EOF or /quit),
// so a caller running this as the foreground channel knows when to return.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Send writes an outbound message to stdout, used for out-of-band
// notifications (e.g. a git-update push) delivered via SendToChannel.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "\n[%s] %s\n> ", msg.Channel, msg.Content)
	return c.out.Flush()
}

func (c *Channel) readLoop() {
	defer close(c.done)
	c.prompt()

	for c.in.Scan() {
		if c.ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			c.prompt()
			continue
		}
		if line == "/quit" || line == "/exit" {
			c.cancel()
			return
		}
		if !c.IsAllowed(SenderID) {
			c.prompt()
			continue
		}

		reply, err := c.process(c.ctx, line)
		c.mu.Lock()
		if err != nil {
			fmt.Fprintf(c.out, "\nerror: %v\n> ", err)
		} else {
			fmt.Fprintf(c.out, "\n%s\n> ", reply)
		}
		c.out.Flush()
		c.mu.Unlock()
	}
}

func (c *Channel) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "> ")
	c.out.Flush()
}
