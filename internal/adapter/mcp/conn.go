package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/simgate/internal/logger"
)

// Errors returned by Deliver.
var (
	ErrInboxFull     = errors.New("mcp: session inbox full")
	ErrSessionClosed = errors.New("mcp: session closed")
)

const (
	inboxSize        = 64
	notificationSize = 16
)

// Sender writes one outbound protocol message to the client.
type Sender interface {
	Send(msg any) error
}

var _ mcpserver.ClientSession = (*Conn)(nil)

// Conn is the protocol half of one session. Inbound messages are queued and
// handled one at a time in arrival order by a single worker.
type Conn struct {
	id     string
	srv    *Server
	out    Sender
	ctx    context.Context
	inbox  chan json.RawMessage
	notify chan mcplib.JSONRPCNotification

	initialized atomic.Bool
	quit        chan struct{}
	once        sync.Once
	onFault     func()
}

// Open registers a session with the protocol server and starts its worker.
// The worker context is detached from ctx cancellation so a request in
// progress finishes even if the stream that opened the session ends.
func (s *Server) Open(ctx context.Context, id string, out Sender) (*Conn, error) {
	c := &Conn{
		id:     id,
		srv:    s,
		out:    out,
		ctx:    logger.WithSessionID(context.WithoutCancel(ctx), id),
		inbox:  make(chan json.RawMessage, inboxSize),
		notify: make(chan mcplib.JSONRPCNotification, notificationSize),
		quit:   make(chan struct{}),
	}
	if err := s.mcpServer.RegisterSession(c.ctx, c); err != nil {
		return nil, fmt.Errorf("register session %s: %w", id, err)
	}
	go c.loop()
	return c, nil
}

// OnFault sets the hook run when the connection shuts itself down.
func (c *Conn) OnFault(fn func()) {
	c.onFault = fn
}

// SessionID implements server.ClientSession.
func (c *Conn) SessionID() string { return c.id }

// Initialize implements server.ClientSession.
func (c *Conn) Initialize() { c.initialized.Store(true) }

// Initialized implements server.ClientSession.
func (c *Conn) Initialized() bool { return c.initialized.Load() }

// NotificationChannel implements server.ClientSession.
func (c *Conn) NotificationChannel() chan<- mcplib.JSONRPCNotification { return c.notify }

// Deliver queues msg for handling. It never blocks.
func (c *Conn) Deliver(msg json.RawMessage) error {
	select {
	case <-c.quit:
		return ErrSessionClosed
	default:
	}
	select {
	case c.inbox <- msg:
		return nil
	case <-c.quit:
		return ErrSessionClosed
	default:
		return ErrInboxFull
	}
}

// Shutdown stops the worker and unregisters the session. Messages still
// queued are dropped; a message being handled runs to completion and its
// response is discarded if the stream is gone.
func (c *Conn) Shutdown() {
	c.once.Do(func() {
		close(c.quit)
		c.srv.mcpServer.UnregisterSession(c.ctx, c.id)
	})
}

func (c *Conn) loop() {
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.inbox:
			if !c.handle(msg) {
				return
			}
		case n := <-c.notify:
			if err := c.out.Send(n); err != nil {
				slog.Debug("notification dropped", "session_id", c.id, "error", err)
			}
		}
	}
}

// handle processes one message and reports whether the worker should go on.
func (c *Conn) handle(msg json.RawMessage) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session worker panic", "session_id", c.id, "panic", r)
			c.fault()
			ok = false
		}
	}()

	resp := c.srv.handle(c.ctx, c, msg)
	if resp == nil {
		return true
	}
	if err := c.out.Send(resp); err != nil {
		slog.Debug("response dropped", "session_id", c.id, "error", err)
	}
	return true
}

// fault shuts the connection down from the protocol side and lets the owner
// drop the session without shutting this connection down again.
func (c *Conn) fault() {
	c.Shutdown()
	if c.onFault != nil {
		c.onFault()
	}
}
