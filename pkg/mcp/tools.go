package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/canvasflow/internal/diagram"
	"github.com/rendis/canvasflow/internal/editor"
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/export"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/simulation"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/pkg/schema"
)

// handleList lists stored workflows.
func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.WorkflowFilter{
		NameContains: req.GetString("name_contains", ""),
		Limit:        req.GetInt("limit", 50),
		Offset:       req.GetInt("offset", 0),
	}
	workflows, err := s.store.ListWorkflows(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

// handleValidate runs the graph validator over a stored canvas.
func (s *Server) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, g, errResult := s.loadCanvas(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	result := s.validator.Validate(g)
	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"version":     wf.Version,
		"valid":       result.Valid(),
		"errors":      result.Errors,
		"warnings":    result.Warnings,
	})
}

// handleOrder returns the execution order and dependency levels.
func (s *Server) handleOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, g, errResult := s.loadCanvas(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	opts := engine.ExportOrder()
	switch mode := req.GetString("mode", "export"); mode {
	case "export":
	case "simulation":
		opts = engine.SimulationOrder()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode: %s", mode)), nil
	}

	plan := engine.BuildPlan(g, opts)
	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"order":       plan.Order,
		"levels":      plan.Levels,
		"complete":    plan.Complete,
	})
}

// handleExport builds the runtime definition document.
func (s *Server) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, g, errResult := s.loadCanvas(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	if !req.GetBool("strict", true) {
		def, err := export.Build(wf.Meta(), g)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return marshalResult(def)
	}

	def, result, err := export.BuildStrict(wf.Meta(), g, s.validator)
	if err != nil {
		payload := map[string]any{"error": err.Error()}
		if result != nil {
			payload["errors"] = result.Errors
			payload["warnings"] = result.Warnings
		}
		data, _ := json.Marshal(payload)
		return mcp.NewToolResultError(string(data)), nil
	}
	return marshalResult(map[string]any{
		"definition": def,
		"warnings":   result.Warnings,
	})
}

// handleSimulate dry-runs the whole workflow and stores the results.
// Progress events are forwarded to the calling client when it has a session.
func (s *Server) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, g, errResult := s.loadCanvas(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	ctx = logging.WithWorkflowID(ctx, wf.ID)

	hub := newClientNotifier(s.mcpServer, s.hub, s.logger)
	ed := editor.New(g, editor.Config{
		WorkflowID: wf.ID,
		Clock:      s.clock,
		Hub:        hub,
		Logger:     s.logger,
	})
	defer ed.Close()

	sim := simulation.New(ed, simulation.Config{
		WorkflowID:  wf.ID,
		Delay:       s.simDelay,
		StopOnError: req.GetBool("stop_on_error", false),
		Clock:       s.clock,
		Hub:         hub,
		Logger:      s.logger,
		Results:     s.store,
		Conditions:  s.conditions,
		JQ:          s.jq,
	})

	report, err := sim.Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation failed: %v", err)), nil
	}
	logging.LogWith(ctx, s.logger).Info("simulation finished",
		"run_id", report.RunID, "nodes", len(report.Results), "failed", report.Failed())

	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"run_id":      report.RunID,
		"order":       report.Order,
		"results":     report.Results,
		"failed":      report.Failed(),
		"complete":    report.Complete,
		"cancelled":   report.Cancelled,
	})
}

// handleResults lists stored simulation results.
func (s *Server) handleResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	results, err := s.store.ListSimulationResults(ctx, workflowID, store.ResultFilter{
		RunID: req.GetString("run_id", ""),
		Limit: req.GetInt("limit", 200),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if results == nil {
		results = []schema.SimulationResult{}
	}
	return marshalResult(map[string]any{"workflow_id": workflowID, "results": results})
}

// handleDiagram draws a workflow in the requested format.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	switch format {
	case "ascii", "mermaid", "svg", "png":
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, svg, or png"), nil
	}

	wf, g, errResult := s.loadCanvas(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	if req.GetBool("include_results", true) {
		results, listErr := s.store.ListSimulationResults(ctx, wf.ID, store.ResultFilter{})
		if listErr == nil {
			g = g.WithStatuses(latestStatuses(results))
		}
	}

	model := diagram.Build(wf.Name, g)
	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "svg":
		svg, imgErr := diagram.RenderImage(ctx, model, graphviz.SVG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model, graphviz.PNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Internal helpers ---

// loadCanvas resolves the workflow_id and optional version arguments to a
// workflow and its graph. A non-nil result is the tool error to return.
func (s *Server) loadCanvas(ctx context.Context, req mcp.CallToolRequest) (*store.Workflow, *graph.Graph, *mcp.CallToolResult) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return nil, nil, mcp.NewToolResultError("workflow_id is required")
	}

	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", err))
	}

	if version := int64(req.GetInt("version", 0)); version > 0 && version != wf.Version {
		rev, revErr := s.store.GetRevision(ctx, workflowID, version)
		if revErr != nil {
			return nil, nil, mcp.NewToolResultError(fmt.Sprintf("revision lookup failed: %v", revErr))
		}
		pinned := *wf
		pinned.Version = rev.Version
		pinned.Snapshot = rev.Snapshot
		wf = &pinned
	}
	return wf, graph.FromSnapshot(wf.Snapshot), nil
}

// latestStatuses keeps the last recorded status of every node. Results are
// listed oldest first.
func latestStatuses(results []schema.SimulationResult) map[string]schema.NodeStatus {
	out := make(map[string]schema.NodeStatus, len(results))
	for _, r := range results {
		out[r.NodeID] = r.Status
	}
	return out
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
