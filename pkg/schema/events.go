package schema

import (
	"encoding/json"
	"time"
)

// Event type constants published on the streaming hub.
const (
	EventGraphChanged  = "graph_changed"
	EventGraphRestored = "graph_restored"
	EventStatusChanged = "status_changed"

	EventSaveRequested = "save_requested"
	EventSaveCompleted = "save_completed"
	EventSaveFailed    = "save_failed"

	EventSimulationStarted   = "simulation_started"
	EventSimulationCompleted = "simulation_completed"
	EventSimulationCancelled = "simulation_cancelled"
	EventNodeSimulated       = "node_simulated"
	EventNodeCancelled       = "node_cancelled"

	EventRuntimeStatus = "runtime_status"
)

// SimulationResult records the outcome of a dry-run of one node.
type SimulationResult struct {
	RunID      string          `json:"run_id,omitempty"`
	NodeID     string          `json:"nodeId"`
	Status     NodeStatus      `json:"status"`
	Summary    string          `json:"summary"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// Runtime statuses reported by the durable-workflow runtime.
const (
	RuntimeStatusPending   = "pending"
	RuntimeStatusRunning   = "running"
	RuntimeStatusCompleted = "completed"
	RuntimeStatusFailed    = "failed"
	RuntimeStatusCancelled = "cancelled"
)

// RuntimeStatus is one poll result from the runtime status feed.
type RuntimeStatus struct {
	RuntimeStatus string  `json:"runtimeStatus"`
	Phase         string  `json:"phase,omitempty"`
	Progress      float64 `json:"progress,omitempty"`
	CurrentNodeID string  `json:"currentNodeId,omitempty"`
}

// Terminal reports whether the runtime will not report further progress.
func (s RuntimeStatus) Terminal() bool {
	switch s.RuntimeStatus {
	case RuntimeStatusCompleted, RuntimeStatusFailed, RuntimeStatusCancelled:
		return true
	}
	return false
}
