// Package graph holds the canonical node/edge collections of a workflow canvas.
//
// A Graph is immutable once constructed: the mutation engine builds a new
// Graph for every change, so a previous value doubles as a history snapshot
// and a rejected mutation can hand back the very same pointer.
package graph

import "github.com/rendis/canvasflow/pkg/schema"

// Graph is an immutable set of nodes and edges.
type Graph struct {
	nodes     []schema.Node
	edges     []schema.Edge
	index     map[string]int // node ID → position in nodes
	edgeIndex map[string]int
}

// New builds a Graph from copies of nodes and edges. Node order is kept:
// group nodes are expected to precede their children.
func New(nodes []schema.Node, edges []schema.Edge) *Graph {
	g := &Graph{
		nodes:     append([]schema.Node(nil), nodes...),
		edges:     append([]schema.Edge(nil), edges...),
		index:     make(map[string]int, len(nodes)),
		edgeIndex: make(map[string]int, len(edges)),
	}
	for i, n := range g.nodes {
		g.index[n.ID] = i
	}
	for i, e := range g.edges {
		g.edgeIndex[e.ID] = i
	}
	return g
}

// FromSnapshot builds a Graph from a persisted snapshot.
func FromSnapshot(s schema.Snapshot) *Graph {
	return New(s.Nodes, s.Edges)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns a copy of the nodes in canvas order.
func (g *Graph) Nodes() []schema.Node {
	return append([]schema.Node(nil), g.nodes...)
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []schema.Edge {
	return append([]schema.Edge(nil), g.edges...)
}

// Node looks up a node by ID.
func (g *Graph) Node(id string) (schema.Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return schema.Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// IndexOf returns the canvas-order index of a node, or -1.
func (g *Graph) IndexOf(id string) int {
	i, ok := g.index[id]
	if !ok {
		return -1
	}
	return i
}

// Edge looks up an edge by ID.
func (g *Graph) Edge(id string) (schema.Edge, bool) {
	i, ok := g.edgeIndex[id]
	if !ok {
		return schema.Edge{}, false
	}
	return g.edges[i], true
}

// Trigger returns the trigger node, if any.
func (g *Graph) Trigger() (schema.Node, bool) {
	for _, n := range g.nodes {
		if n.Kind == schema.KindTrigger {
			return n, true
		}
	}
	return schema.Node{}, false
}

// Children returns the direct children of a group, in canvas order.
func (g *Graph) Children(parentID string) []schema.Node {
	var out []schema.Node
	for _, n := range g.nodes {
		if n.ParentID == parentID && parentID != "" {
			out = append(out, n)
		}
	}
	return out
}

// EdgesOf returns every edge that has nodeID as source or target.
func (g *Graph) EdgesOf(nodeID string) []schema.Edge {
	var out []schema.Edge
	for _, e := range g.edges {
		if e.Source == nodeID || e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// AbsolutePosition resolves a node's canvas coordinates through all ancestor
// groups. The walk stops at a missing ancestor or on a revisited one, so
// corrupt parent data cannot make it loop.
func (g *Graph) AbsolutePosition(id string) (schema.Position, bool) {
	n, ok := g.Node(id)
	if !ok {
		return schema.Position{}, false
	}

	pos := n.Position
	seen := map[string]bool{n.ID: true}
	for parentID := n.ParentID; parentID != "" && !seen[parentID]; {
		parent, ok := g.Node(parentID)
		if !ok {
			break
		}
		seen[parentID] = true
		pos = pos.Add(parent.Position)
		parentID = parent.ParentID
	}
	return pos, true
}

// Ancestors returns the parent chain of a node, nearest first. It reports
// cycle=true if the chain revisits a node.
func (g *Graph) Ancestors(id string) (chain []string, cycle bool) {
	n, ok := g.Node(id)
	if !ok {
		return nil, false
	}
	seen := map[string]bool{n.ID: true}
	for parentID := n.ParentID; parentID != ""; {
		if seen[parentID] {
			return chain, true
		}
		parent, ok := g.Node(parentID)
		if !ok {
			return chain, false
		}
		seen[parentID] = true
		chain = append(chain, parentID)
		parentID = parent.ParentID
	}
	return chain, false
}

// IsGroupable reports whether a node may be put into a new group.
func IsGroupable(n schema.Node) bool {
	if n.ParentID != "" {
		return false
	}
	switch n.Kind {
	case schema.KindTrigger, schema.KindPlaceholder, schema.KindGroup, schema.KindWhile:
		return false
	}
	return true
}

// Snapshot returns the persistable {nodes, edges} pair with transient status stripped.
func (g *Graph) Snapshot() schema.Snapshot {
	nodes := g.Nodes()
	for i := range nodes {
		nodes[i].Status = ""
	}
	edges := g.Edges()
	if edges == nil {
		edges = []schema.Edge{}
	}
	if nodes == nil {
		nodes = []schema.Node{}
	}
	return schema.Snapshot{Nodes: nodes, Edges: edges}
}
