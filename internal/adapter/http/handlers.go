package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	simmcp "github.com/Strob0t/simgate/internal/adapter/mcp"
	"github.com/Strob0t/simgate/internal/adapter/sse"
	"github.com/Strob0t/simgate/internal/session"
)

const (
	// MessagesPath is where clients post protocol messages for a session.
	MessagesPath = "/mcp/messages"

	maxMessageBytes = 1 << 20 // 1 MB
)

// Handlers holds the gateway's HTTP handlers and their collaborators.
type Handlers struct {
	MCP       *simmcp.Server
	Sessions  *session.Registry
	KeepAlive time.Duration
	StaticDir string
	Name      string
	Version   string
}

// OpenStream negotiates a new session: the SSE stream is prepared, the
// protocol half is attached, the session is registered and only then is the
// client told where to post. The handler blocks for the life of the stream.
func (h *Handlers) OpenStream(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	tr, err := sse.NewTransport(w, id)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	conn, err := h.MCP.Open(r.Context(), id, tr)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	conn.OnFault(func() { h.Sessions.Close(id, session.OriginServer) })

	if _, err := h.Sessions.Open(id, tr, conn); err != nil {
		conn.Shutdown()
		writeInternalError(w, err)
		return
	}

	if err := tr.SendEndpoint(MessagesPath + "?sessionId=" + id); err != nil {
		slog.Warn("session handshake failed", "session_id", id, "error", err)
		h.Sessions.Close(id, session.OriginGateway)
		return
	}

	tr.Serve(r.Context(), h.KeepAlive, h.Sessions.Observe(id))
}

// PostMessage queues one client message on its session. The reply travels
// over the session's stream; the POST itself is answered with 202.
func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if !requireField(w, id, "sessionId") {
		return
	}

	sess, ok := h.Sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	msg, ok := readJSON[json.RawMessage](w, r, maxMessageBytes)
	if !ok {
		return
	}

	if err := sess.Server.Deliver(msg); err != nil {
		switch {
		case errors.Is(err, simmcp.ErrInboxFull):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "session busy")
		case errors.Is(err, simmcp.ErrSessionClosed):
			writeError(w, http.StatusNotFound, "session not found")
		default:
			writeInternalError(w, err)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Health reports liveness and the number of open sessions.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.Sessions.Len(),
	})
}

// Identity answers the root path with the service name and version only.
func (h *Handlers) Identity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    h.Name,
		"version": h.Version,
	})
}

// NoAuth answers OAuth discovery and registration probes. The gateway needs
// no credentials, so every such endpoint is absent.
func (h *Handlers) NoAuth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error:   "not_found",
		Message: "no authentication required",
	})
}

// StaticFile returns a handler serving one named file from the static root.
func (h *Handlers) StaticFile(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveStatic(w, r, name)
	}
}

// Asset serves files below the static assets directory.
func (h *Handlers) Asset(w http.ResponseWriter, r *http.Request) {
	h.serveStatic(w, r, "assets/"+urlParam(r, "*"))
}

func (h *Handlers) serveStatic(w http.ResponseWriter, r *http.Request, name string) {
	p, err := resolveStatic(h.StaticDir, name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, p)
}
