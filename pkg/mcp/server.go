// Package mcp exposes stored canvases to agents as MCP tools: listing,
// validation, ordering, export, simulation and diagrams.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/internal/validation"
)

// ServerDeps holds the dependencies for creating a Server. Store is required.
type ServerDeps struct {
	Store      store.Store
	Validator  validation.Validator // nil = validation.NewGraphValidator()
	Hub        streaming.EventHub
	Clock      clock.Clock
	Logger     *slog.Logger
	Conditions *expressions.Conditions
	JQ         *expressions.GoJQEngine
	// SimulationDelay is the per-node delay of canvas.simulate.
	// 0 = simulation.DefaultDelay, negative = no delay.
	SimulationDelay time.Duration
}

// Server wraps an MCP server with canvasflow tool handlers.
type Server struct {
	store      store.Store
	validator  validation.Validator
	hub        streaming.EventHub
	clock      clock.Clock
	logger     *slog.Logger
	conditions *expressions.Conditions
	jq         *expressions.GoJQEngine
	simDelay   time.Duration
	mcpServer  *server.MCPServer
}

// NewServer creates a Server with every tool registered.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := deps.Validator
	if v == nil {
		gv, err := validation.NewGraphValidator()
		if err != nil {
			return nil, fmt.Errorf("build graph validator: %w", err)
		}
		v = gv
	}
	hub := deps.Hub
	if hub == nil {
		hub = streaming.Discard{}
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	s := &Server{
		store:      deps.Store,
		validator:  v,
		hub:        hub,
		clock:      clk,
		logger:     logger.With(slog.String("component", "mcp")),
		conditions: deps.Conditions,
		jq:         deps.JQ,
		simDelay:   deps.SimulationDelay,
	}

	mcpSrv := server.NewMCPServer(
		"canvasflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Canvasflow stores visual workflow canvases. Use canvas.list to find a workflow, canvas.validate to check it, canvas.order for its execution order, canvas.export for the runtime definition, canvas.simulate to dry-run it, canvas.results for past dry-runs and canvas.diagram to draw it."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: orderTool(), Handler: s.handleOrder},
		{Tool: exportTool(), Handler: s.handleExport},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: resultsTool(), Handler: s.handleResults},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func listTool() mcp.Tool {
	return mcp.NewTool("canvas.list",
		mcp.WithDescription("List stored workflows, most recently updated first"),
		mcp.WithString("name_contains", mcp.Description("Only workflows whose name contains this text")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of workflows (default: 50)")),
		mcp.WithNumber("offset", mcp.Description("Number of workflows to skip")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("canvas.validate",
		mcp.WithDescription("Validate a workflow canvas and report errors and warnings"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithNumber("version", mcp.Description("Saved revision to use (default: current)")),
	)
}

func orderTool() mcp.Tool {
	return mcp.NewTool("canvas.order",
		mcp.WithDescription("Compute the execution order of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithNumber("version", mcp.Description("Saved revision to use (default: current)")),
		mcp.WithString("mode",
			mcp.Enum("export", "simulation"),
			mcp.Description("export breaks ties by canvas order, simulation by position (default: export)"),
		),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("canvas.export",
		mcp.WithDescription("Build the runtime definition document of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithNumber("version", mcp.Description("Saved revision to use (default: current)")),
		mcp.WithBoolean("strict", mcp.Description("Refuse to export an invalid workflow (default: true)")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("canvas.simulate",
		mcp.WithDescription("Dry-run every node of a workflow in execution order and store the results"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithBoolean("stop_on_error", mcp.Description("Stop at the first failing node (default: false)")),
	)
}

func resultsTool() mcp.Tool {
	return mcp.NewTool("canvas.results",
		mcp.WithDescription("List stored simulation results of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithString("run_id", mcp.Description("Only results of this simulation run")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default: 200)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("canvas.diagram",
		mcp.WithDescription("Draw a workflow. Returns ASCII art, Mermaid flowchart syntax, SVG markup or a base64-encoded PNG image"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithNumber("version", mcp.Description("Saved revision to use (default: current)")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "svg", "png"),
			mcp.Description("Output format"),
		),
		mcp.WithBoolean("include_results", mcp.Description("Color nodes by their latest simulation result (default: true)")),
	)
}
