package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// WidgetURI identifies the HTML template that renders a simulation result.
const WidgetURI = "ui://widget/simulation.html"

// widgetFile is the widget's file name inside the static directory.
const widgetFile = "simulation-widget.html"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			WidgetURI,
			"Simulation widget",
			mcplib.WithResourceDescription("Interactive chart for run_simulation results"),
			mcplib.WithMIMEType("text/html+skybridge"),
		),
		s.handleWidgetResource,
	)
}

func (s *Server) handleWidgetResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	data, err := os.ReadFile(filepath.Join(s.cfg.StaticDir, widgetFile))
	if err != nil {
		return nil, fmt.Errorf("read widget: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/html+skybridge",
			Text:     string(data),
		},
	}, nil
}
