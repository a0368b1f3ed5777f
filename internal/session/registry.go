// Package session tracks open streaming channels. Each entry maps a session
// id to the transport carrying the stream and the protocol server handling
// the session's messages.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/simgate/internal/domain"
)

// Transport is the streaming half of a session. Stop must be idempotent.
type Transport interface {
	Stop()
}

// Server is the protocol half of a session. Deliver queues one inbound
// message; messages are handled in the order they were delivered. Shutdown
// must be idempotent.
type Server interface {
	Deliver(msg json.RawMessage) error
	Shutdown()
}

// Origin identifies who asked for a session to be closed.
type Origin int

const (
	// OriginTransport: the stream ended or failed.
	OriginTransport Origin = iota
	// OriginServer: the protocol server shut itself down.
	OriginServer
	// OriginGateway: the gateway is shutting down or the handshake failed.
	OriginGateway
)

func (o Origin) String() string {
	switch o {
	case OriginTransport:
		return "transport"
	case OriginServer:
		return "server"
	default:
		return "gateway"
	}
}

// Session is one open streaming channel.
type Session struct {
	ID        string
	Transport Transport
	Server    Server
	OpenedAt  time.Time

	once sync.Once
}

// terminate stops both halves exactly once. The server is not shut down
// again when it initiated the close itself.
func (s *Session) terminate(origin Origin) {
	s.once.Do(func() {
		if s.Transport != nil {
			s.Transport.Stop()
		}
		if s.Server != nil && origin != OriginServer {
			s.Server.Shutdown()
		}
	})
}

// Registry owns the session map. All access goes through its methods.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onChange func(delta int64)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// OnChange registers a hook called with +1 on open and -1 on close.
func (r *Registry) OnChange(fn func(delta int64)) {
	r.onChange = fn
}

// Open registers a newly negotiated channel. It must run before the client
// is told the channel is ready.
func (r *Registry) Open(id string, t Transport, s Server) (*Session, error) {
	if id == "" {
		return nil, errors.New("session: empty id")
	}
	sess := &Session{ID: id, Transport: t, Server: s, OpenedAt: time.Now()}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrConflict)
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(1)
	}
	slog.Info("session opened", "session_id", id)
	return sess, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes the session and stops it. Closing an absent id is a no-op;
// it returns whether an entry was removed. Close does not wait for in-flight
// work tied to the session.
func (r *Registry) Close(id string, origin Origin) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if r.onChange != nil {
		r.onChange(-1)
	}
	sess.terminate(origin)
	slog.Info("session closed", "session_id", id, "origin", origin.String(), "age_ms", time.Since(sess.OpenedAt).Milliseconds())
	return true
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Close(id, OriginGateway)
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
