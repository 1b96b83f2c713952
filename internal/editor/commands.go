package editor

import (
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// SaveMode is how a command's result is persisted.
type SaveMode int

const (
	SaveNone SaveMode = iota
	SaveImmediate
	SaveDebounced
)

// Effect declares what a successful command does besides changing the graph.
type Effect struct {
	History bool
	Save    SaveMode
}

var (
	structural = Effect{History: true, Save: SaveImmediate}
	movement   = Effect{History: true, Save: SaveDebounced}
	fieldEdit  = Effect{History: false, Save: SaveDebounced}
)

// Command is one user action on the canvas.
type Command interface {
	Name() string
	Effect() Effect
	apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error)
}

// InsertNode adds a node, optionally splicing it into an edge.
type InsertNode struct{ Request engine.InsertRequest }

func (InsertNode) Name() string   { return "insert_node" }
func (InsertNode) Effect() Effect { return structural }
func (c InsertNode) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	return m.InsertNode(g, c.Request)
}

// DeleteNode removes a node.
type DeleteNode struct{ ID string }

func (DeleteNode) Name() string   { return "delete_node" }
func (DeleteNode) Effect() Effect { return structural }
func (c DeleteNode) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.DeleteNode(g, c.ID)
	return next, c.ID, err
}

// Connect adds an edge.
type Connect struct{ Request engine.ConnectRequest }

func (Connect) Name() string   { return "connect" }
func (Connect) Effect() Effect { return structural }
func (c Connect) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, _, err := m.Connect(g, c.Request)
	return next, c.Request.Target, err
}

// Disconnect removes an edge.
type Disconnect struct{ EdgeID string }

func (Disconnect) Name() string   { return "disconnect" }
func (Disconnect) Effect() Effect { return structural }
func (c Disconnect) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.Disconnect(g, c.EdgeID)
	return next, "", err
}

// Group wraps nodes in a new group.
type Group struct{ IDs []string }

func (Group) Name() string   { return "group" }
func (Group) Effect() Effect { return structural }
func (c Group) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	return m.Group(g, c.IDs)
}

// Ungroup dissolves a group.
type Ungroup struct{ GroupID string }

func (Ungroup) Name() string   { return "ungroup" }
func (Ungroup) Effect() Effect { return structural }
func (c Ungroup) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.Ungroup(g, c.GroupID)
	return next, c.GroupID, err
}

// Detach moves one node out of its group.
type Detach struct{ ID string }

func (Detach) Name() string   { return "detach" }
func (Detach) Effect() Effect { return structural }
func (c Detach) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.Detach(g, c.ID)
	return next, c.ID, err
}

// MorphType changes a node's kind.
type MorphType struct {
	ID        string
	Kind      schema.NodeKind
	Overrides map[string]any
}

func (MorphType) Name() string   { return "morph_type" }
func (MorphType) Effect() Effect { return structural }
func (c MorphType) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.MorphType(g, c.ID, c.Kind, c.Overrides)
	return next, c.ID, err
}

// Clear removes everything but the trigger.
type Clear struct{}

func (Clear) Name() string   { return "clear" }
func (Clear) Effect() Effect { return structural }
func (Clear) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.Clear(g)
	return next, "", err
}

// MoveNode drags a node to a new position.
type MoveNode struct {
	ID       string
	Position schema.Position
}

func (MoveNode) Name() string   { return "move_node" }
func (MoveNode) Effect() Effect { return movement }
func (c MoveNode) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.MoveNode(g, c.ID, c.Position)
	return next, c.ID, err
}

// Rename changes a node's label.
type Rename struct {
	ID    string
	Label string
}

func (Rename) Name() string   { return "rename" }
func (Rename) Effect() Effect { return fieldEdit }
func (c Rename) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.Rename(g, c.ID, c.Label)
	return next, c.ID, err
}

// UpdateConfig patches a node's config fields.
type UpdateConfig struct {
	ID    string
	Patch map[string]any
}

func (UpdateConfig) Name() string   { return "update_config" }
func (UpdateConfig) Effect() Effect { return fieldEdit }
func (c UpdateConfig) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.UpdateConfig(g, c.ID, c.Patch)
	return next, c.ID, err
}

// SetEnabled toggles a node.
type SetEnabled struct {
	ID      string
	Enabled bool
}

func (SetEnabled) Name() string   { return "set_enabled" }
func (SetEnabled) Effect() Effect { return fieldEdit }
func (c SetEnabled) apply(m *engine.Mutator, g *graph.Graph) (*graph.Graph, string, error) {
	next, err := m.SetEnabled(g, c.ID, c.Enabled)
	return next, c.ID, err
}
