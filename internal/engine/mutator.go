package engine

import (
	"errors"
	"reflect"

	"github.com/google/uuid"

	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Mutator applies structural changes to a graph.
//
// Every operation takes the current graph and returns the next one. A
// rejected operation returns the input graph itself together with an
// error, so callers can treat it as a no-op.
type Mutator struct {
	newID func() string
}

// MutatorConfig holds the tunables for a Mutator.
type MutatorConfig struct {
	// IDGen produces node and edge IDs. Defaults to random UUIDs.
	IDGen func() string
}

// NewMutator creates a Mutator.
func NewMutator(cfg MutatorConfig) *Mutator {
	if cfg.IDGen == nil {
		cfg.IDGen = uuid.NewString
	}
	return &Mutator{newID: cfg.IDGen}
}

// InsertRequest describes a node to add.
type InsertRequest struct {
	Kind     schema.NodeKind
	Position schema.Position // local to ParentID when set
	ParentID string
	Label    string            // defaults to DefaultLabel(Kind)
	Config   schema.NodeConfig // defaults to DefaultConfig(Kind)
	// SpliceEdgeID, when set, replaces edge A→B with A→new→B.
	SpliceEdgeID string
}

// ConnectRequest describes an edge to add.
type ConnectRequest struct {
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

func precondition(format string, args ...any) *schema.Error {
	return schema.NewErrorf(schema.ErrCodePrecondition, format, args...)
}

func notFound(what, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %s not found", what, id)
}

// NewCanvas returns the starting graph of a new workflow: a manual trigger
// connected to an "add step" placeholder.
func (m *Mutator) NewCanvas() *graph.Graph {
	trigger := schema.Node{
		ID:      m.newID(),
		Kind:    schema.KindTrigger,
		Label:   DefaultLabel(schema.KindTrigger),
		Enabled: true,
		Config:  DefaultConfig(schema.KindTrigger),
	}
	placeholder := schema.Node{
		ID:       m.newID(),
		Kind:     schema.KindPlaceholder,
		Label:    DefaultLabel(schema.KindPlaceholder),
		Enabled:  true,
		Position: schema.Position{X: 0, Y: 240},
		Config:   DefaultConfig(schema.KindPlaceholder),
	}
	e := schema.Edge{ID: m.newID(), Source: trigger.ID, Target: placeholder.ID}
	return graph.New([]schema.Node{trigger, placeholder}, []schema.Edge{e})
}

// InsertNode adds a node and returns its ID.
func (m *Mutator) InsertNode(g *graph.Graph, req InsertRequest) (*graph.Graph, string, error) {
	if req.Kind == "" {
		return g, "", schema.NewError(schema.ErrCodeValidation, "node kind is required")
	}
	if req.Kind == schema.KindTrigger {
		if _, ok := g.Trigger(); ok {
			return g, "", precondition("workflow already has a trigger")
		}
	}
	if req.ParentID != "" {
		parent, ok := g.Node(req.ParentID)
		if !ok {
			return g, "", notFound("parent", req.ParentID)
		}
		if parent.Kind != schema.KindGroup {
			return g, "", precondition("parent %s is not a group", req.ParentID)
		}
		if !canHaveParent(req.Kind) {
			return g, "", precondition("%s nodes cannot be placed in a group", req.Kind)
		}
	}

	var splice schema.Edge
	if req.SpliceEdgeID != "" {
		e, ok := g.Edge(req.SpliceEdgeID)
		if !ok {
			return g, "", notFound("edge", req.SpliceEdgeID)
		}
		if !connectable(req.Kind) || req.Kind == schema.KindTrigger {
			return g, "", precondition("%s nodes cannot be spliced into an edge", req.Kind)
		}
		splice = e
	}

	n := schema.Node{
		ID:       m.newID(),
		Kind:     req.Kind,
		Position: req.Position,
		ParentID: req.ParentID,
		Label:    req.Label,
		Enabled:  true,
		Config:   req.Config,
	}
	if n.Label == "" {
		n.Label = DefaultLabel(req.Kind)
	}
	if n.Config == nil {
		n.Config = DefaultConfig(req.Kind)
	}

	nodes := append(g.Nodes(), n)
	edges := g.Edges()
	if splice.ID != "" {
		edges = removeEdges(edges, func(e schema.Edge) bool { return e.ID == splice.ID })
		edges = append(edges,
			schema.Edge{ID: m.newID(), Source: splice.Source, Target: n.ID, SourceHandle: splice.SourceHandle},
			schema.Edge{ID: m.newID(), Source: n.ID, Target: splice.Target, TargetHandle: splice.TargetHandle},
		)
	}
	return graph.New(nodes, edges), n.ID, nil
}

// DeleteNode removes a node and every edge touching it. Children of a
// deleted group move to the group's parent, keeping their absolute position.
func (m *Mutator) DeleteNode(g *graph.Graph, id string) (*graph.Graph, error) {
	n, ok := g.Node(id)
	if !ok {
		return g, notFound("node", id)
	}
	if n.Kind == schema.KindTrigger {
		return g, precondition("the trigger node cannot be deleted")
	}

	nodes := reparentChildren(g, id, n.ParentID)
	nodes = removeNode(nodes, id)
	edges := removeEdges(g.Edges(), touches(id))
	return graph.New(nodes, edges), nil
}

// Connect adds an edge and returns its ID.
func (m *Mutator) Connect(g *graph.Graph, req ConnectRequest) (*graph.Graph, string, error) {
	if req.Source == req.Target {
		return g, "", precondition("a node cannot connect to itself")
	}
	src, ok := g.Node(req.Source)
	if !ok {
		return g, "", notFound("node", req.Source)
	}
	dst, ok := g.Node(req.Target)
	if !ok {
		return g, "", notFound("node", req.Target)
	}
	if !connectable(src.Kind) || !connectable(dst.Kind) {
		return g, "", precondition("%s and %s nodes cannot be connected", src.Kind, dst.Kind)
	}
	if dst.Kind == schema.KindTrigger {
		return g, "", precondition("the trigger node has no inputs")
	}
	for _, e := range g.Edges() {
		if e.Source == req.Source && e.Target == req.Target &&
			e.SourceHandle == req.SourceHandle && e.TargetHandle == req.TargetHandle {
			return g, "", schema.NewErrorf(schema.ErrCodeConflict, "edge %s already connects %s to %s", e.ID, req.Source, req.Target)
		}
	}

	e := schema.Edge{
		ID:           m.newID(),
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
	}
	return graph.New(g.Nodes(), append(g.Edges(), e)), e.ID, nil
}

// Disconnect removes an edge.
func (m *Mutator) Disconnect(g *graph.Graph, edgeID string) (*graph.Graph, error) {
	if _, ok := g.Edge(edgeID); !ok {
		return g, notFound("edge", edgeID)
	}
	edges := removeEdges(g.Edges(), func(e schema.Edge) bool { return e.ID == edgeID })
	return graph.New(g.Nodes(), edges), nil
}

// MoveNode sets a node's position in its parent's coordinate space.
func (m *Mutator) MoveNode(g *graph.Graph, id string, pos schema.Position) (*graph.Graph, error) {
	return m.updateNode(g, id, func(n *schema.Node) error {
		n.Position = pos
		return nil
	})
}

// SetEnabled enables or disables a node. The trigger is always enabled.
func (m *Mutator) SetEnabled(g *graph.Graph, id string, enabled bool) (*graph.Graph, error) {
	return m.updateNode(g, id, func(n *schema.Node) error {
		if n.Kind == schema.KindTrigger && !enabled {
			return precondition("the trigger node cannot be disabled")
		}
		n.Enabled = enabled
		return nil
	})
}

// UpdateConfig merges patch into a node's config. A nil value removes the
// field. The result must decode into the node kind's config.
func (m *Mutator) UpdateConfig(g *graph.Graph, id string, patch map[string]any) (*graph.Graph, error) {
	return m.updateNode(g, id, func(n *schema.Node) error {
		current, err := schema.ConfigToMap(n.Config)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "encode config: %s", err.Error()).WithNode(n.ID).WithCause(err)
		}
		merged := mergeFields(current, patch)
		cfg, err := schema.ConfigFromMap(n.Kind, merged)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid %s config: %s", n.Kind, err.Error()).WithNode(n.ID).WithCause(err)
		}
		n.Config = cfg
		return nil
	})
}

// MorphType changes a node's kind in place. The new config is the new
// kind's defaults, overlaid with the node's existing fields, overlaid with
// overrides. A label still equal to the old kind's default follows the new kind.
func (m *Mutator) MorphType(g *graph.Graph, id string, kind schema.NodeKind, overrides map[string]any) (*graph.Graph, error) {
	return m.updateNode(g, id, func(n *schema.Node) error {
		if kind == "" {
			return schema.NewError(schema.ErrCodeValidation, "node kind is required")
		}
		for _, k := range []schema.NodeKind{n.Kind, kind} {
			if k == schema.KindTrigger || k == schema.KindGroup {
				return precondition("cannot change %s into %s", n.Kind, kind)
			}
		}
		if n.ParentID != "" && !canHaveParent(kind) {
			return precondition("%s nodes cannot be placed in a group", kind)
		}

		defaults, err := schema.ConfigToMap(DefaultConfig(kind))
		if err != nil {
			return err
		}
		existing, err := schema.ConfigToMap(n.Config)
		if err != nil {
			return err
		}
		merged := mergeFields(mergeFields(defaults, existing), overrides)
		cfg, err := schema.ConfigFromMap(kind, merged)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid %s config: %s", kind, err.Error()).WithNode(n.ID).WithCause(err)
		}

		if n.Label == DefaultLabel(n.Kind) {
			n.Label = DefaultLabel(kind)
		}
		n.Kind = kind
		n.Config = cfg
		return nil
	})
}

// Clear removes every node except the trigger, and every edge.
func (m *Mutator) Clear(g *graph.Graph) (*graph.Graph, error) {
	trigger, ok := g.Trigger()
	if !ok {
		return g, precondition("workflow has no trigger")
	}
	if g.Len() == 1 && len(g.Edges()) == 0 {
		return g, nil
	}
	return graph.New([]schema.Node{trigger}, nil), nil
}

// SetStatus applies transient statuses. It never fails and returns g when
// nothing changes.
func (m *Mutator) SetStatus(g *graph.Graph, statuses map[string]schema.NodeStatus) *graph.Graph {
	return g.WithStatuses(statuses)
}

// updateNode copies g with fn applied to one node. If fn leaves the node
// unchanged, g itself is returned.
func (m *Mutator) updateNode(g *graph.Graph, id string, fn func(n *schema.Node) error) (*graph.Graph, error) {
	i := g.IndexOf(id)
	if i < 0 {
		return g, notFound("node", id)
	}
	nodes := g.Nodes()
	before := nodes[i]
	if err := fn(&nodes[i]); err != nil {
		var e *schema.Error
		if errors.As(err, &e) && e.NodeID == "" {
			e.WithNode(id)
		}
		return g, err
	}
	if sameNode(before, nodes[i]) {
		return g, nil
	}
	return graph.New(nodes, g.Edges()), nil
}

func sameNode(a, b schema.Node) bool {
	if a.ID != b.ID || a.Kind != b.Kind || a.Position != b.Position || a.ParentID != b.ParentID ||
		a.Label != b.Label || a.Enabled != b.Enabled || a.Status != b.Status ||
		a.Width != b.Width || a.Height != b.Height {
		return false
	}
	am, err1 := schema.ConfigToMap(a.Config)
	bm, err2 := schema.ConfigToMap(b.Config)
	if err1 != nil || err2 != nil {
		return false
	}
	return reflect.DeepEqual(am, bm)
}

// connectable reports whether a kind takes part in edges.
func connectable(kind schema.NodeKind) bool {
	return kind != schema.KindNote && kind != schema.KindGroup
}

func touches(id string) func(schema.Edge) bool {
	return func(e schema.Edge) bool { return e.Source == id || e.Target == id }
}

func removeEdges(edges []schema.Edge, drop func(schema.Edge) bool) []schema.Edge {
	out := edges[:0:0]
	for _, e := range edges {
		if !drop(e) {
			out = append(out, e)
		}
	}
	return out
}

func removeNode(nodes []schema.Node, id string) []schema.Node {
	out := make([]schema.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

// mergeFields overlays patch onto base, returning a new map. Nil patch
// values delete the key.
func mergeFields(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = schema.CloneValue(v)
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = schema.CloneValue(v)
	}
	return out
}
