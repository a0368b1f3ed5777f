package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/simgate/internal/domain/simulation"
	"github.com/Strob0t/simgate/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(s.runSimulationTool())
}

func (s *Server) runSimulationTool() mcpserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Run a Monte Carlo simulation of a household's finances and summarize " +
			"net worth percentiles, runway and phase. Missing profile fields are reported back instead of guessed."),
		mcplib.WithTitleAnnotation("Financial Monte Carlo simulation"),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
		mcplib.WithNumber(simulation.FieldInvestableAssets,
			mcplib.Required(), mcplib.Min(0),
			mcplib.Description("Total investable assets in dollars"),
		),
		mcplib.WithNumber(simulation.FieldAnnualSpending,
			mcplib.Required(), mcplib.Min(0),
			mcplib.Description("Annual spending in dollars"),
		),
		mcplib.WithNumber(simulation.FieldCurrentAge,
			mcplib.Required(), mcplib.Min(1), mcplib.Max(simulation.MaxAge),
			mcplib.Description("Current age in years"),
		),
		mcplib.WithNumber(simulation.FieldExpectedIncome,
			mcplib.Required(), mcplib.Min(0),
			mcplib.Description("Expected annual income in dollars; 0 if retired"),
		),
		mcplib.WithNumber(simulation.FieldSeed,
			mcplib.Description("Random seed; the same seed and profile reproduce the same result. Defaults to the current time"),
		),
		mcplib.WithNumber(simulation.FieldStartYear,
			mcplib.Min(simulation.MinStartYear), mcplib.Max(simulation.MaxStartYear),
			mcplib.Description("First simulated calendar year. Defaults to the current year"),
		),
		mcplib.WithNumber(simulation.FieldHorizonMonths,
			mcplib.Min(simulation.MinHorizonMonths), mcplib.Max(simulation.MaxHorizonMonths),
			mcplib.Description("Months to simulate. Defaults to reaching age 95"),
		),
		mcplib.WithString(simulation.FieldVerbosity,
			mcplib.Enum(string(simulation.VerbositySummary), string(simulation.VerbosityDetailed)),
			mcplib.DefaultString(string(simulation.VerbositySummary)),
			mcplib.Description("detailed adds annual snapshots to the summary"),
		),
	}
	for _, key := range simulation.StrategyKeys {
		opts = append(opts, mcplib.WithObject(key,
			mcplib.Description("Optional "+key+" settings passed to the simulation engine"),
		))
	}

	tool := mcplib.NewTool(service.ToolName, opts...)
	tool.Meta = mcplib.NewMetaFromMap(map[string]any{
		"openai/outputTemplate": WidgetURI,
	})
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRunSimulation,
	}
}

func (s *Server) handleRunSimulation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Simulations == nil {
		return mcplib.NewToolResultError("simulation service not configured"), nil
	}
	args := req.GetArguments()
	if args == nil {
		args = map[string]any{}
	}

	resp := s.deps.Simulations.Invoke(ctx, args)

	result := &mcplib.CallToolResult{
		Content:           []mcplib.Content{mcplib.NewTextContent(resp.Text)},
		StructuredContent: resp.Structured,
	}
	if resp.Widget != nil {
		result.Meta = mcplib.NewMetaFromMap(map[string]any{"widgetData": resp.Widget})
	}
	return result, nil
}
