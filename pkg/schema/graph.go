package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeKind enumerates the kinds of nodes on the canvas.
type NodeKind string

const (
	KindTrigger      NodeKind = "trigger"
	KindAction       NodeKind = "action"
	KindActivity     NodeKind = "activity"
	KindApprovalGate NodeKind = "approval-gate"
	KindTimer        NodeKind = "timer"
	KindLoopUntil    NodeKind = "loop-until"
	KindWhile        NodeKind = "while"
	KindIfElse       NodeKind = "if-else"
	KindNote         NodeKind = "note"
	KindSetState     NodeKind = "set-state"
	KindTransform    NodeKind = "transform"
	KindPublishEvent NodeKind = "publish-event"
	KindSubWorkflow  NodeKind = "sub-workflow"
	KindGroup        NodeKind = "group"
	KindPlaceholder  NodeKind = "add-placeholder"
)

// knownKinds is the closed set of kinds with a typed config.
var knownKinds = map[NodeKind]bool{
	KindTrigger:      true,
	KindAction:       true,
	KindActivity:     true,
	KindApprovalGate: true,
	KindTimer:        true,
	KindLoopUntil:    true,
	KindWhile:        true,
	KindIfElse:       true,
	KindNote:         true,
	KindSetState:     true,
	KindTransform:    true,
	KindPublishEvent: true,
	KindSubWorkflow:  true,
	KindGroup:        true,
	KindPlaceholder:  true,
}

// Known reports whether k is one of the built-in kinds.
func (k NodeKind) Known() bool {
	return knownKinds[k]
}

// Executable reports whether nodes of this kind take part in execution order.
func (k NodeKind) Executable() bool {
	switch k {
	case KindTrigger, KindGroup, KindNote, KindPlaceholder:
		return false
	}
	return true
}

// NodeStatus is the transient execution/simulation state shown on a node.
// It is view state: never recorded in history and never persisted.
type NodeStatus string

const (
	NodeStatusIdle    NodeStatus = "idle"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Default node dimensions used when a node carries no explicit size.
const (
	DefaultNodeWidth  = 192.0
	DefaultNodeHeight = 192.0
)

// Position is a point on the canvas, relative to the parent group if any.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by o.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p translated by -o.
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

// Node is a single step on the canvas.
type Node struct {
	ID       string     `json:"id"`
	Kind     NodeKind   `json:"type"`
	Position Position   `json:"position"`
	ParentID string     `json:"parentId,omitempty"`
	Label    string     `json:"label"`
	Enabled  bool       `json:"enabled"`
	Status   NodeStatus `json:"status,omitempty"`
	Width    float64    `json:"width,omitempty"`
	Height   float64    `json:"height,omitempty"`
	Config   NodeConfig `json:"-"`
}

// Size returns the node dimensions, falling back to the defaults.
func (n Node) Size() (w, h float64) {
	w, h = n.Width, n.Height
	if w <= 0 {
		w = DefaultNodeWidth
	}
	if h <= 0 {
		h = DefaultNodeHeight
	}
	return w, h
}

// nodeJSON is the wire shape of a Node; config travels as a plain object.
type nodeJSON struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"type"`
	Position Position       `json:"position"`
	ParentID string         `json:"parentId,omitempty"`
	Label    string         `json:"label"`
	Enabled  bool           `json:"enabled"`
	Status   NodeStatus     `json:"status,omitempty"`
	Width    float64        `json:"width,omitempty"`
	Height   float64        `json:"height,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// MarshalJSON encodes the typed config as a plain JSON object.
func (n Node) MarshalJSON() ([]byte, error) {
	cfg, err := ConfigToMap(n.Config)
	if err != nil {
		return nil, fmt.Errorf("encode config of node %s: %w", n.ID, err)
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Kind:     n.Kind,
		Position: n.Position,
		ParentID: n.ParentID,
		Label:    n.Label,
		Enabled:  n.Enabled,
		Status:   n.Status,
		Width:    n.Width,
		Height:   n.Height,
		Config:   cfg,
	})
}

// UnmarshalJSON decodes the config into the variant selected by the node kind.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := ConfigFromMap(raw.Kind, raw.Config)
	if err != nil {
		return fmt.Errorf("decode config of node %s: %w", raw.ID, err)
	}
	*n = Node{
		ID:       raw.ID,
		Kind:     raw.Kind,
		Position: raw.Position,
		ParentID: raw.ParentID,
		Label:    raw.Label,
		Enabled:  raw.Enabled,
		Status:   raw.Status,
		Width:    raw.Width,
		Height:   raw.Height,
		Config:   cfg,
	}
	return nil
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Snapshot is the {nodes, edges} pair handed to the persistence API.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// SavedRecord is what the persistence API returns for a successful save.
type SavedRecord struct {
	WorkflowID string    `json:"workflow_id"`
	Version    int64     `json:"version"`
	SavedAt    time.Time `json:"saved_at"`
}
