package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfhttp "github.com/Strob0t/simgate/internal/adapter/http"
	simmcp "github.com/Strob0t/simgate/internal/adapter/mcp"
	"github.com/Strob0t/simgate/internal/middleware"
	"github.com/Strob0t/simgate/internal/service"
	"github.com/Strob0t/simgate/internal/session"
)

// --- Mocks ---

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, args map[string]any) service.ToolResponse {
	return service.ToolResponse{
		Text:       "simulated",
		Structured: map[string]any{"success": true, "argCount": len(args)},
		Success:    true,
	}
}

type stubTransport struct{}

func (stubTransport) Stop() {}

type stubServer struct {
	err error
}

func (s stubServer) Deliver(json.RawMessage) error { return s.err }
func (stubServer) Shutdown() {}

// --- Helpers ---

func newTestGateway(t *testing.T, capacity int) (*cfhttp.Handlers, http.Handler) {
	t.Helper()

	static := t.TempDir()
	writeFile(t, filepath.Join(static, "viewer.html"), "<html>viewer</html>")
	writeFile(t, filepath.Join(static, "simulation-widget.html"), "<html>widget</html>")
	writeFile(t, filepath.Join(static, "assets", "app.js"), "console.log('ok')")

	srv := simmcp.NewServer(
		simmcp.ServerConfig{Name: "simgate", Version: "test", StaticDir: static},
		simmcp.ServerDeps{Simulations: stubInvoker{}},
	)
	h := &cfhttp.Handlers{
		MCP:       srv,
		Sessions:  session.NewRegistry(),
		KeepAlive: time.Hour,
		StaticDir: static,
		Name:      "simgate",
		Version:   "test",
	}
	rl := middleware.NewRateLimiter(capacity, time.Minute, "")
	return h, cfhttp.NewRouter(h, cfhttp.RouterDeps{RateLimiter: rl})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	name string
	data string
}

// readEvent reads the next SSE event, skipping comments.
func readEvent(t *testing.T, br *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- Health & identity ---

func TestHealth(t *testing.T) {
	_, r := newTestGateway(t, 100)

	w := do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["sessions"] != float64(0) {
		t.Fatalf("expected 0 sessions, got %v", body["sessions"])
	}
}

func TestIdentityOmitsEndpoints(t *testing.T) {
	_, r := newTestGateway(t, 100)

	w := do(r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["name"] != "simgate" || body["version"] != "test" {
		t.Fatalf("unexpected identity %v", body)
	}
	if len(body) != 2 {
		t.Fatalf("expected name and version only, got %v", body)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected permissive CORS header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestPreflight(t *testing.T) {
	_, r := newTestGateway(t, 100)

	w := do(r, http.MethodOptions, "/mcp/messages", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

// --- Discovery ---

func TestDiscoveryProbesReturnNotFound(t *testing.T) {
	_, r := newTestGateway(t, 100)

	paths := []string{
		"/.well-known/oauth-authorization-server",
		"/.well-known/oauth-protected-resource",
		"/.well-known/openid-configuration",
		"/register",
		"/authorize",
		"/token",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			w := do(r, http.MethodGet, p, "")
			if w.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", w.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != "not_found" || body["message"] != "no authentication required" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}

	w := do(r, http.MethodPost, "/token", `{"grant_type":"client_credentials"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for POST /token, got %d", w.Code)
	}
}

// --- Static pages ---

func TestStaticPages(t *testing.T) {
	_, r := newTestGateway(t, 100)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/viewer", http.StatusOK, "viewer"},
		{"/viewer.html", http.StatusOK, "viewer"},
		{"/widget", http.StatusOK, "widget"},
		{"/simulation-widget.html", http.StatusOK, "widget"},
		{"/assets/app.js", http.StatusOK, "console.log"},
		{"/test", http.StatusNotFound, ""},
		{"/assets/missing.js", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, "")
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if tt.body != "" && !strings.Contains(w.Body.String(), tt.body) {
				t.Fatalf("expected body to contain %q, got %q", tt.body, w.Body.String())
			}
		})
	}
}

// --- Messages ---

func TestPostMessageMissingSessionID(t *testing.T) {
	_, r := newTestGateway(t, 100)

	w := do(r, http.MethodPost, "/mcp/messages", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPostMessageUnknownSession(t *testing.T) {
	_, r := newTestGateway(t, 100)

	w := do(r, http.MethodPost, "/mcp/messages?sessionId=nope", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPostMessageInvalidBody(t *testing.T) {
	h, r := newTestGateway(t, 100)
	if _, err := h.Sessions.Open("s1", stubTransport{}, stubServer{}); err != nil {
		t.Fatal(err)
	}

	w := do(r, http.MethodPost, "/mcp/messages?sessionId=s1", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPostMessageDeliveryErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"inbox full", simmcp.ErrInboxFull, http.StatusServiceUnavailable},
		{"closed", simmcp.ErrSessionClosed, http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, r := newTestGateway(t, 100)
			if _, err := h.Sessions.Open("s1", stubTransport{}, stubServer{err: tt.err}); err != nil {
				t.Fatal(err)
			}

			w := do(r, http.MethodPost, "/mcp/messages?sessionId=s1", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

// --- Admission control ---

func TestRateLimitRejectsBeforeRouting(t *testing.T) {
	_, r := newTestGateway(t, 2)

	for i := range 2 {
		if w := do(r, http.MethodGet, "/", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := do(r, http.MethodPost, "/mcp/messages?sessionId=whatever", `{}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "rate_limited" {
		t.Fatalf("expected rate_limited, got %v", body["error"])
	}

	if w := do(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health should bypass admission control, got %d", w.Code)
	}
}

// --- End to end ---

func TestSessionLifecycle(t *testing.T) {
	h, r := newTestGateway(t, 100)
	ts := httptest.NewServer(r)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := time.AfterFunc(5*time.Second, cancel)
	defer stop.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	br := bufio.NewReader(resp.Body)
	ev := readEvent(t, br)
	if ev.name != "endpoint" {
		t.Fatalf("expected endpoint event, got %q", ev.name)
	}
	if !strings.HasPrefix(ev.data, "/mcp/messages?sessionId=") {
		t.Fatalf("unexpected endpoint %q", ev.data)
	}
	endpoint := ev.data

	if h.Sessions.Len() != 1 {
		t.Fatalf("expected 1 open session, got %d", h.Sessions.Len())
	}

	call := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"run_simulation","arguments":{"currentAge":40}}}`
	post, err := http.Post(ts.URL+endpoint, "application/json", strings.NewReader(call))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", post.StatusCode)
	}

	ev = readEvent(t, br)
	if ev.name != "message" {
		t.Fatalf("expected message event, got %q", ev.name)
	}
	var msg struct {
		ID     int `json:"id"`
		Result struct {
			StructuredContent map[string]any `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.ID != 7 {
		t.Fatalf("expected reply to id 7, got %d", msg.ID)
	}
	if msg.Result.StructuredContent["success"] != true {
		t.Fatalf("expected successful tool result, got %v", msg.Result.StructuredContent)
	}

	// Client disconnect tears the session down.
	cancel()
	resp.Body.Close()
	waitFor(t, func() bool { return h.Sessions.Len() == 0 })

	post, err = http.Post(ts.URL+endpoint, "application/json", strings.NewReader(call))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after disconnect, got %d", post.StatusCode)
	}
}

func TestShutdownClosesStreams(t *testing.T) {
	h, r := newTestGateway(t, 100)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/mcp")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	if ev := readEvent(t, br); ev.name != "endpoint" {
		t.Fatalf("expected endpoint event, got %q", ev.name)
	}

	h.Sessions.CloseAll()
	if h.Sessions.Len() != 0 {
		t.Fatalf("expected no sessions after CloseAll, got %d", h.Sessions.Len())
	}

	// The stream ends once the handler returns.
	done := make(chan error, 1)
	go func() {
		_, err := br.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected stream to end")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream still open after CloseAll")
	}
}
