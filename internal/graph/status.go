package graph

import "github.com/rendis/canvasflow/pkg/schema"

// Statuses returns the transient status of every node that has one.
func (g *Graph) Statuses() map[string]schema.NodeStatus {
	out := make(map[string]schema.NodeStatus)
	for _, n := range g.nodes {
		if n.Status != "" {
			out[n.ID] = n.Status
		}
	}
	return out
}

// WithStatuses returns a copy of g with the given node statuses applied.
// Unknown node IDs are ignored. If nothing changes, g itself is returned.
func (g *Graph) WithStatuses(statuses map[string]schema.NodeStatus) *Graph {
	changed := false
	for id, st := range statuses {
		if i, ok := g.index[id]; ok && g.nodes[i].Status != st {
			changed = true
			break
		}
	}
	if !changed {
		return g
	}

	nodes := g.Nodes()
	for i := range nodes {
		if st, ok := statuses[nodes[i].ID]; ok {
			nodes[i].Status = st
		}
	}
	return New(nodes, g.edges)
}

// WithStatus is WithStatuses for a single node.
func (g *Graph) WithStatus(id string, status schema.NodeStatus) *Graph {
	return g.WithStatuses(map[string]schema.NodeStatus{id: status})
}
