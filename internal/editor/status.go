package editor

import (
	"context"

	"github.com/rendis/canvasflow/pkg/schema"
)

// SetStatus sets one node's transient status. No history, no save.
func (e *Editor) SetStatus(ctx context.Context, nodeID string, status schema.NodeStatus) {
	e.SetStatuses(ctx, map[string]schema.NodeStatus{nodeID: status})
}

// SetStatuses applies several transient statuses at once. No history, no save.
func (e *Editor) SetStatuses(ctx context.Context, statuses map[string]schema.NodeStatus) {
	e.mu.Lock()
	cur := e.graph
	e.graph = e.mutator.SetStatus(cur, statuses)
	changed := e.graph != cur
	e.mu.Unlock()

	if !changed {
		return
	}
	for id, st := range statuses {
		e.publish(ctx, schema.EventStatusChanged, id, map[string]any{"status": st})
	}
}

// ResetStatuses sets every node back to idle.
func (e *Editor) ResetStatuses(ctx context.Context) {
	g := e.Graph()
	statuses := make(map[string]schema.NodeStatus, g.Len())
	for _, n := range g.Nodes() {
		statuses[n.ID] = schema.NodeStatusIdle
	}
	e.SetStatuses(ctx, statuses)
}

// ApplyRuntimeStatus maps one poll of the runtime status feed onto node
// statuses: the current node runs, nodes that were running before have
// finished, and a terminal status settles the current node.
func (e *Editor) ApplyRuntimeStatus(ctx context.Context, rs schema.RuntimeStatus) {
	g := e.Graph()
	statuses := make(map[string]schema.NodeStatus)
	for id, st := range g.Statuses() {
		if st == schema.NodeStatusRunning && id != rs.CurrentNodeID {
			statuses[id] = schema.NodeStatusSuccess
		}
	}

	if rs.CurrentNodeID != "" && g.Has(rs.CurrentNodeID) {
		switch rs.RuntimeStatus {
		case schema.RuntimeStatusCompleted:
			statuses[rs.CurrentNodeID] = schema.NodeStatusSuccess
		case schema.RuntimeStatusFailed:
			statuses[rs.CurrentNodeID] = schema.NodeStatusError
		case schema.RuntimeStatusCancelled:
			statuses[rs.CurrentNodeID] = schema.NodeStatusIdle
		default:
			statuses[rs.CurrentNodeID] = schema.NodeStatusRunning
		}
	}

	e.SetStatuses(ctx, statuses)
	e.publish(ctx, schema.EventRuntimeStatus, rs.CurrentNodeID, rs)
}
