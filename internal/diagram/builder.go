package diagram

import (
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Build constructs a Model from a canvas graph. Placeholders and the edges
// touching them are left out; notes and groups are drawn. Nodes whose parent
// chain is broken or cyclic are drawn at the top level.
func Build(title string, g *graph.Graph) *Model {
	model := &Model{Title: title}
	if g == nil {
		return model
	}

	all := g.Nodes()
	index := make(map[string]*Node, len(all))
	drawn := make([]schema.Node, 0, len(all))
	for _, n := range all {
		if n.Kind == schema.KindPlaceholder {
			continue
		}
		index[n.ID] = toNode(n)
		drawn = append(drawn, n)
	}

	for _, n := range drawn {
		node := index[n.ID]
		if parent := container(g, n, index); parent != nil {
			parent.Children = append(parent.Children, node)
			continue
		}
		model.Nodes = append(model.Nodes, node)
	}

	for _, e := range g.Edges() {
		if index[e.Source] == nil || index[e.Target] == nil {
			continue
		}
		model.Edges = append(model.Edges, Edge{From: e.Source, To: e.Target, Label: e.SourceHandle})
	}

	model.Levels = buildLevels(g)
	return model
}

func toNode(n schema.Node) *Node {
	label := n.Label
	if label == "" {
		label = n.ID
	}
	if cfg, ok := n.Config.(schema.GroupConfig); ok && cfg.Title != "" {
		label = cfg.Title
	}
	return &Node{
		ID:       n.ID,
		Label:    label,
		Kind:     n.Kind,
		Status:   n.Status,
		Disabled: !n.Enabled && n.Kind != schema.KindTrigger,
	}
}

// container returns the drawn group n belongs to, or nil when n is drawn at
// the top level.
func container(g *graph.Graph, n schema.Node, index map[string]*Node) *Node {
	if n.ParentID == "" {
		return nil
	}
	if _, cycle := g.Ancestors(n.ID); cycle {
		return nil
	}
	parent, ok := index[n.ParentID]
	if !ok || parent.Kind != schema.KindGroup {
		return nil
	}
	return parent
}

// buildLevels puts the trigger on its own level above the dependency levels
// of the executable nodes.
func buildLevels(g *graph.Graph) [][]string {
	plan := engine.BuildPlan(g, engine.SimulationOrder())
	levels := make([][]string, 0, len(plan.Levels)+1)
	if trigger, ok := g.Trigger(); ok {
		levels = append(levels, []string{trigger.ID})
	}
	for _, level := range plan.Levels {
		if len(level) > 0 {
			levels = append(levels, level)
		}
	}
	return levels
}
