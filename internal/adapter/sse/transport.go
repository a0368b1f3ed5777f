package sse

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Strob0t/simgate/internal/session"
)

// ErrClosed is returned when sending on a stopped transport.
var ErrClosed = errors.New("sse: transport closed")

// Transport is the streaming half of one session. Sends may come from any
// goroutine; the stream itself is owned by Serve.
type Transport struct {
	id string
	w  *Writer

	mu     sync.Mutex
	closed bool

	done     chan struct{}
	stopOnce sync.Once
	failed   chan error
}

// NewTransport prepares w for streaming.
func NewTransport(w http.ResponseWriter, id string) (*Transport, error) {
	sw, err := NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &Transport{
		id:     id,
		w:      sw,
		done:   make(chan struct{}),
		failed: make(chan error, 1),
	}, nil
}

// SessionID returns the id of the session carried by this stream.
func (t *Transport) SessionID() string { return t.id }

// SendEndpoint tells the client where to post its messages. This is the
// handshake that marks the channel ready.
func (t *Transport) SendEndpoint(path string) error {
	return t.write(func(w *Writer) error { return w.Raw("endpoint", path) })
}

// Send writes one protocol message. A write failure is reported to the
// observer by Serve.
func (t *Transport) Send(msg any) error {
	err := t.write(func(w *Writer) error { return w.Event("message", msg) })
	if err != nil && !errors.Is(err, ErrClosed) {
		t.fail(err)
	}
	return err
}

// Stop ends the stream. It is safe to call more than once.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// Done is closed once Stop has been called.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Serve blocks until the stream ends. A client disconnect (ctx done) is
// reported as NotifyClosed, a failed write or keep-alive as NotifyError.
// Stop ends Serve without notifying. No writes reach the stream after Serve
// returns.
func (t *Transport) Serve(ctx context.Context, keepAlive time.Duration, obs session.Observer) {
	defer t.seal()

	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-t.done:
			return
		case <-ctx.Done():
			t.seal()
			obs.NotifyClosed()
			return
		case err := <-t.failed:
			t.seal()
			obs.NotifyError(err)
			return
		case <-tick:
			if err := t.write(func(w *Writer) error { return w.Comment("ping") }); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				t.seal()
				obs.NotifyError(err)
				return
			}
		}
	}
}

func (t *Transport) write(fn func(*Writer) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	return fn(t.w)
}

func (t *Transport) fail(err error) {
	select {
	case t.failed <- err:
	default:
	}
}

// seal forbids further writes. The response writer must not be touched once
// the HTTP handler returns.
func (t *Transport) seal() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
