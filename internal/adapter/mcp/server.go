// Package mcp adapts the simulation service to the Model Context Protocol.
// mcp-go handles JSON-RPC dispatch; the gateway owns transport and sessions.
package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/simgate/internal/service"
)

// Invoker runs the simulation tool.
type Invoker interface {
	Invoke(ctx context.Context, args map[string]any) service.ToolResponse
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Name      string
	Version   string
	StaticDir string // directory holding the rendering widget HTML
}

// ServerDeps holds the services the MCP tools call into.
type ServerDeps struct {
	Simulations Invoker
}

// Server wraps an mcp-go server with the simulation tool registered.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the MCP server and registers tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Run Monte Carlo retirement simulations. Call "+service.ToolName+
			" with investableAssets, annualSpending, currentAge and expectedIncome."),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// handle dispatches one JSON-RPC message on behalf of session c.
func (s *Server) handle(ctx context.Context, c *Conn, msg json.RawMessage) mcplib.JSONRPCMessage {
	return s.mcpServer.HandleMessage(s.mcpServer.WithContext(ctx, c), msg)
}
