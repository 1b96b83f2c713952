package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

// forwarded lists the events pushed to the calling client during a tool call.
var forwarded = map[string]bool{
	schema.EventSimulationStarted:   true,
	schema.EventNodeSimulated:       true,
	schema.EventNodeCancelled:       true,
	schema.EventSimulationCompleted: true,
	schema.EventSimulationCancelled: true,
}

// clientNotifier is an EventHub that publishes to an inner hub and also
// pushes simulation progress to the MCP session found in the publish
// context. Pushing is best-effort: clients without a session are skipped.
type clientNotifier struct {
	streaming.EventHub
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

func newClientNotifier(mcpServer *server.MCPServer, inner streaming.EventHub, logger *slog.Logger) *clientNotifier {
	return &clientNotifier{EventHub: inner, mcpServer: mcpServer, logger: logger}
}

// Publish forwards event to the inner hub, then to the client session.
func (n *clientNotifier) Publish(ctx context.Context, event streaming.StreamEvent) error {
	err := n.EventHub.Publish(ctx, event)
	if forwarded[event.EventType] {
		n.notify(ctx, event)
	}
	return err
}

func (n *clientNotifier) notify(ctx context.Context, event streaming.StreamEvent) {
	if server.ClientSessionFromContext(ctx) == nil {
		return
	}
	params := map[string]any{
		"level":  "info",
		"logger": "canvasflow",
		"data": map[string]any{
			"workflow_id": event.WorkflowID,
			"node_id":     event.NodeID,
			"event_type":  event.EventType,
			"payload":     event.Payload,
		},
	}
	err := n.mcpServer.SendNotificationToClient(ctx, "notifications/message", params)
	if err != nil && !errors.Is(err, server.ErrSessionNotFound) {
		n.logger.Debug("client notification dropped", "event", event.EventType, "error", err)
	}
}
