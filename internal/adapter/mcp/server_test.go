package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	simmcp "github.com/Strob0t/simgate/internal/adapter/mcp"
	"github.com/Strob0t/simgate/internal/service"
)

// --- Mocks ---

type stubInvoker struct {
	resp    service.ToolResponse
	started chan struct{}
	release chan struct{}
}

func (s *stubInvoker) Invoke(_ context.Context, args map[string]any) service.ToolResponse {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	resp := s.resp
	if resp.Text == "" {
		resp.Text = fmt.Sprintf("args=%d", len(args))
	}
	return resp
}

// chanSender collects outbound messages as decoded JSON.
type chanSender struct {
	out chan map[string]any
}

func newChanSender() *chanSender {
	return &chanSender{out: make(chan map[string]any, 128)}
}

func (c *chanSender) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.out <- m
	return nil
}

func (c *chanSender) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-c.out:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a response")
		return nil
	}
}

func rpc(id int, method string, params any) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params})
	return data
}

func toolCall(id int, args map[string]any) json.RawMessage {
	return rpc(id, "tools/call", map[string]any{"name": service.ToolName, "arguments": args})
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{})
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}

	tools := s.MCPServer().ListTools()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	tool, ok := tools[service.ToolName]
	if !ok {
		t.Fatalf("expected %s to be registered", service.ToolName)
	}
	required := map[string]bool{}
	for _, r := range tool.Tool.InputSchema.Required {
		required[r] = true
	}
	for _, f := range []string{"investableAssets", "annualSpending", "currentAge", "expectedIncome"} {
		if !required[f] {
			t.Errorf("expected %s to be required", f)
		}
	}
	if _, ok := tool.Tool.InputSchema.Properties["socialSecurity"]; !ok {
		t.Error("expected strategy objects in the schema")
	}
}

func TestConn_ToolCall(t *testing.T) {
	inv := &stubInvoker{resp: service.ToolResponse{
		Text:       "Transition phase: ...",
		Structured: map[string]any{"success": true, "runId": "r1"},
		Widget:     map[string]any{"runId": "r1", "trajectory": []int{1, 2}},
		Success:    true,
	}}
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{Simulations: inv})
	out := newChanSender()

	conn, err := s.Open(context.Background(), "sess-1", out)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Shutdown()

	if err := conn.Deliver(rpc(1, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]any{"name": "t", "version": "1"},
		"capabilities":    map[string]any{},
	})); err != nil {
		t.Fatal(err)
	}
	if m := out.next(t); m["id"] != 1.0 || m["result"] == nil {
		t.Fatalf("unexpected initialize response %v", m)
	}
	if !conn.Initialized() {
		t.Error("expected session to be initialized")
	}

	if err := conn.Deliver(toolCall(2, map[string]any{"currentAge": 40})); err != nil {
		t.Fatal(err)
	}
	m := out.next(t)
	result, ok := m["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result, got %v", m)
	}
	content := result["content"].([]any)[0].(map[string]any)
	if content["type"] != "text" || content["text"] != "Transition phase: ..." {
		t.Errorf("unexpected content %v", content)
	}
	if sc := result["structuredContent"].(map[string]any); sc["runId"] != "r1" {
		t.Errorf("unexpected structured content %v", sc)
	}
	meta, ok := result["_meta"].(map[string]any)
	if !ok {
		t.Fatalf("expected _meta, got %v", result)
	}
	if widget := meta["widgetData"].(map[string]any); widget["runId"] != "r1" {
		t.Errorf("unexpected widget data %v", widget)
	}
	if _, isErr := result["isError"]; isErr {
		t.Error("simulation responses are never protocol errors")
	}
}

func TestConn_FailureHasNoWidget(t *testing.T) {
	inv := &stubInvoker{resp: service.ToolResponse{
		Text:       "needs input",
		Structured: map[string]any{"success": false, "code": "MISSING_INPUT"},
		Code:       "MISSING_INPUT",
	}}
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{Simulations: inv})
	out := newChanSender()
	conn, err := s.Open(context.Background(), "sess-1", out)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Shutdown()

	_ = conn.Deliver(toolCall(1, nil))
	result := out.next(t)["result"].(map[string]any)
	if _, ok := result["_meta"]; ok {
		t.Error("failed runs carry no widget data")
	}
	if sc := result["structuredContent"].(map[string]any); sc["code"] != "MISSING_INPUT" {
		t.Errorf("unexpected structured content %v", sc)
	}
}

func TestConn_PreservesArrivalOrder(t *testing.T) {
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{Simulations: &stubInvoker{}})
	out := newChanSender()
	conn, err := s.Open(context.Background(), "sess-1", out)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Shutdown()

	for i := 1; i <= 10; i++ {
		var msg json.RawMessage
		if i%2 == 0 {
			msg = rpc(i, "ping", nil)
		} else {
			msg = toolCall(i, map[string]any{"a": 1})
		}
		if err := conn.Deliver(msg); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= 10; i++ {
		if m := out.next(t); m["id"] != float64(i) {
			t.Fatalf("response %d has id %v", i, m["id"])
		}
	}
}

func TestConn_DuplicateSession(t *testing.T) {
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{})
	conn, err := s.Open(context.Background(), "dup", newChanSender())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Shutdown()
	if _, err := s.Open(context.Background(), "dup", newChanSender()); err == nil {
		t.Fatal("expected duplicate session error")
	}
}

func TestConn_DeliverAfterShutdown(t *testing.T) {
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{})
	conn, err := s.Open(context.Background(), "sess-1", newChanSender())
	if err != nil {
		t.Fatal(err)
	}
	conn.Shutdown()
	conn.Shutdown()

	if err := conn.Deliver(rpc(1, "ping", nil)); !errors.Is(err, simmcp.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	// The id is free again once unregistered.
	again, err := s.Open(context.Background(), "sess-1", newChanSender())
	if err != nil {
		t.Fatalf("expected id to be reusable after shutdown: %v", err)
	}
	again.Shutdown()
}

func TestConn_InboxFull(t *testing.T) {
	inv := &stubInvoker{started: make(chan struct{}), release: make(chan struct{})}
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0"}, simmcp.ServerDeps{Simulations: inv})
	conn, err := s.Open(context.Background(), "sess-1", newChanSender())
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		conn.Shutdown()
		close(inv.release)
	}()

	if err := conn.Deliver(toolCall(1, nil)); err != nil {
		t.Fatal(err)
	}
	<-inv.started

	var full bool
	for i := 0; i < 1000; i++ {
		if err := conn.Deliver(rpc(100+i, "ping", nil)); errors.Is(err, simmcp.ErrInboxFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("expected the inbox to fill while the worker is busy")
	}
}

func TestWidgetResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "simulation-widget.html"), []byte("<html>widget</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := simmcp.NewServer(simmcp.ServerConfig{Name: "test", Version: "0.1.0", StaticDir: dir}, simmcp.ServerDeps{})
	out := newChanSender()
	conn, err := s.Open(context.Background(), "sess-1", out)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Shutdown()

	_ = conn.Deliver(rpc(1, "resources/read", map[string]any{"uri": simmcp.WidgetURI}))
	m := out.next(t)
	result, ok := m["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result, got %v", m)
	}
	contents := result["contents"].([]any)[0].(map[string]any)
	if contents["text"] != "<html>widget</html>" {
		t.Errorf("unexpected widget contents %v", contents)
	}
}
