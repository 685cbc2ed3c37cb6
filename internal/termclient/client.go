package termclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/izzyreal/wishjournal/internal/frames"
)

var ErrNotRunning = errors.New("terminal session not running")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	DefaultKeepalive = 60 * time.Second
	sideTimeout      = 10 * time.Second
)

type Options struct {
	Keepalive time.Duration
	Logger    *slog.Logger
	// OnState is called with the client lock held on every state change.
	OnState func(State)
}

// Client drives one terminal view. Each Start opens a fresh connection and
// invalidates the previous one; frames from a superseded connection are
// dropped.
type Client struct {
	transport Transport
	screen    *Screen
	keepalive time.Duration
	logger    *slog.Logger
	onState   func(State)

	mu        sync.Mutex
	state     State
	gen       uint64
	stream    Stream
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
	filter    OutputFilter
	last      *frames.Frame
}

func NewClient(t Transport, screen *Screen, opts Options) *Client {
	if screen == nil {
		screen = NewScreen(nil)
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepalive
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		transport: t,
		screen:    screen,
		keepalive: opts.Keepalive,
		logger:    opts.Logger,
		onState:   opts.OnState,
	}
}

func (c *Client) Screen() *Screen { return c.screen }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Result returns the exit or timeout frame that ended the last session, if
// any.
func (c *Client) Result() (frames.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return frames.Frame{}, false
	}
	return *c.last, true
}

// Start tears down any open connection, clears the screen and opens a new
// session for target.
func (c *Client) Start(ctx context.Context, target Target) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.teardownLocked()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.done = done
	c.filter = OutputFilter{}
	c.last = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.screen.Reset()

	stream, err := c.transport.Open(ctx, target)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.teardownLocked()
		}
		c.mu.Unlock()
		cancel()
		close(done)
		c.screen.Append(fmt.Sprintf("Nie udało się połączyć: %v\n", err), StyleError)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		stream.Close()
		cancel()
		close(done)
		return context.Canceled
	}
	c.stream = stream
	c.mu.Unlock()

	c.logger.Debug("terminal stream opened", "target", target.String())
	go c.read(ctx, gen, stream, done)
	return nil
}

func (c *Client) read(ctx context.Context, gen uint64, stream Stream, done chan struct{}) {
	defer close(done)
	for {
		f, err := stream.Next()
		if err != nil {
			c.mu.Lock()
			if c.gen == gen {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.Warn("terminal stream failed", "error", err)
				}
				c.flushLocked()
				c.teardownLocked()
			}
			c.mu.Unlock()
			return
		}
		if !c.handle(ctx, gen, stream, f) {
			return
		}
	}
}

// handle applies one frame and reports whether reading should continue.
func (c *Client) handle(ctx context.Context, gen uint64, stream Stream, f frames.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}

	switch f.Type {
	case frames.TypeSession:
		c.sessionID = f.SessionID
		c.setStateLocked(StateRunning)
		go c.keepaliveLoop(ctx, stream, f.SessionID)
	case frames.TypeOutput:
		c.applyLocked(c.filter.Write(f.Text))
	case frames.TypeError:
		c.flushLocked()
		c.screen.Append(f.Text, StyleError)
	case frames.TypeUI:
		c.screen.SetView(f.UI)
	case frames.TypeExit:
		c.flushLocked()
		c.screen.Append(fmt.Sprintf("\n[Program zakończony, kod wyjścia: %d]\n", f.ExitCode()), StylePlain)
		c.last = &f
		c.teardownLocked()
		return false
	case frames.TypeTimeout:
		c.flushLocked()
		c.screen.Append("\n[Przekroczono limit czasu bezczynności]\n", StyleError)
		c.last = &f
		c.teardownLocked()
		return false
	default:
		c.logger.Debug("ignoring unknown frame", "type", f.Type)
	}
	return true
}

func (c *Client) applyLocked(segs []Segment) {
	for _, seg := range segs {
		if seg.Clear {
			c.screen.Clear()
			continue
		}
		c.screen.Append(seg.Text, StylePlain)
	}
}

func (c *Client) flushLocked() {
	c.applyLocked(c.filter.Flush())
}

// teardownLocked closes the stream and stops the keepalive. The read
// goroutine notices the closed stream and exits.
func (c *Client) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.sessionID = ""
	c.setStateLocked(StateDisconnected)
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Client) keepaliveLoop(ctx context.Context, stream Stream, sessionID string) {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, sideTimeout)
			err := stream.Keepalive(sctx, sessionID)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("keepalive failed", "session_id", sessionID, "error", err)
			}
		}
	}
}

// running returns the stream and session of a running connection.
func (c *Client) running() (Stream, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning || c.stream == nil {
		return nil, "", ErrNotRunning
	}
	return c.stream, c.sessionID, nil
}

// Send forwards input to the session. Failures are logged and returned but
// never retried; the stream ending is the only recovery signal.
func (c *Client) Send(ctx context.Context, in frames.Input) error {
	stream, id, err := c.running()
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, sideTimeout)
	defer cancel()
	if err := stream.Send(sctx, id, in); err != nil {
		c.logger.Warn("send input failed", "session_id", id, "error", err)
		return err
	}
	return nil
}

func (c *Client) SendLine(ctx context.Context, text string) error {
	return c.Send(ctx, frames.Input{Text: text})
}

func (c *Client) SendKey(ctx context.Context, key string) error {
	return c.Send(ctx, frames.Input{Key: key})
}

// Stop asks the server to end the session and disconnects.
func (c *Client) Stop(ctx context.Context) error {
	stream, id, err := c.running()
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, sideTimeout)
	err = stream.Stop(sctx, id)
	cancel()
	if err != nil {
		c.logger.Warn("stop request failed", "session_id", id, "error", err)
	}

	c.mu.Lock()
	if c.stream == stream {
		c.flushLocked()
		c.teardownLocked()
	}
	c.mu.Unlock()
	return err
}

// Wait blocks until the current connection has ended.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects without notifying the server and waits for the reader.
func (c *Client) Close() error {
	c.mu.Lock()
	c.teardownLocked()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}
