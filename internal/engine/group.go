package engine

import (
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Group wraps the groupable nodes among ids in a new group sized to their
// bounding box plus GroupPadding. Selected nodes keep their absolute
// position; their own position becomes local to the group.
func (m *Mutator) Group(g *graph.Graph, ids []string) (*graph.Graph, string, error) {
	selected := make(map[string]bool, len(ids))
	var members []string
	first := -1
	for _, id := range ids {
		n, ok := g.Node(id)
		if !ok || selected[id] || !graph.IsGroupable(n) {
			continue
		}
		selected[id] = true
		members = append(members, id)
		if i := g.IndexOf(id); first < 0 || i < first {
			first = i
		}
	}
	if len(members) < 2 {
		return g, "", precondition("grouping needs at least 2 groupable nodes, got %d", len(members))
	}

	box, _ := g.Bounds(members)
	origin := schema.Position{X: box.Min.X - GroupPadding, Y: box.Min.Y - GroupPadding}
	group := schema.Node{
		ID:       m.newID(),
		Kind:     schema.KindGroup,
		Label:    DefaultLabel(schema.KindGroup),
		Enabled:  true,
		Position: origin,
		Width:    box.Width() + 2*GroupPadding,
		Height:   box.Height() + 2*GroupPadding,
		Config:   DefaultConfig(schema.KindGroup),
	}

	old := g.Nodes()
	nodes := make([]schema.Node, 0, len(old)+1)
	for i, n := range old {
		if i == first {
			nodes = append(nodes, group)
		}
		if selected[n.ID] {
			abs, _ := g.AbsolutePosition(n.ID)
			n.Position = abs.Sub(origin)
			n.ParentID = group.ID
		}
		nodes = append(nodes, n)
	}
	return graph.New(nodes, g.Edges()), group.ID, nil
}

// Ungroup removes a group, moving its children to the group's parent (the
// canvas root for top-level groups) with their absolute positions kept.
// Edges touching the group itself are dropped.
func (m *Mutator) Ungroup(g *graph.Graph, groupID string) (*graph.Graph, error) {
	grp, ok := g.Node(groupID)
	if !ok {
		return g, notFound("group", groupID)
	}
	if grp.Kind != schema.KindGroup {
		return g, precondition("node %s is not a group", groupID).WithNode(groupID)
	}

	nodes := reparentChildren(g, groupID, grp.ParentID)
	nodes = removeNode(nodes, groupID)
	edges := removeEdges(g.Edges(), touches(groupID))
	return graph.New(nodes, edges), nil
}

// Detach moves a single child out of its group to the canvas root.
func (m *Mutator) Detach(g *graph.Graph, id string) (*graph.Graph, error) {
	return m.updateNode(g, id, func(n *schema.Node) error {
		if n.ParentID == "" {
			return precondition("node %s is not in a group", id)
		}
		abs, _ := g.AbsolutePosition(id)
		n.Position = abs
		n.ParentID = ""
		return nil
	})
}

// reparentChildren returns a copy of g's nodes in which the direct children
// of parentID now belong to newParent, positioned so their absolute
// coordinates do not change.
func reparentChildren(g *graph.Graph, parentID, newParent string) []schema.Node {
	var base schema.Position
	if newParent != "" {
		if p, ok := g.AbsolutePosition(newParent); ok {
			base = p
		} else {
			newParent = ""
		}
	}

	nodes := g.Nodes()
	for i := range nodes {
		if nodes[i].ParentID != parentID || nodes[i].ID == parentID {
			continue
		}
		abs, _ := g.AbsolutePosition(nodes[i].ID)
		nodes[i].Position = abs.Sub(base)
		nodes[i].ParentID = newParent
	}
	return nodes
}
