package validation

import (
	"fmt"

	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// validateStructural checks what every other stage relies on: unique ids,
// a single trigger, edges that point at real nodes and a sane parent tree.
func validateStructural(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	nodes := g.Nodes()

	seen := make(map[string]bool, len(nodes))
	triggers := 0
	for i, n := range nodes {
		if n.ID == "" {
			result.AddError(fmt.Sprintf("nodes[%d].id", i), schema.ErrCodeValidation, "node id is empty")
			continue
		}
		if seen[n.ID] {
			result.AddNodeError(n.ID, schema.ErrCodeValidation, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if n.Kind == schema.KindTrigger {
			triggers++
		}
	}

	switch {
	case triggers == 0:
		result.AddError("nodes", schema.ErrCodeValidation, "workflow has no trigger node")
	case triggers > 1:
		result.AddError("nodes", schema.ErrCodeValidation,
			fmt.Sprintf("workflow has %d trigger nodes, expected exactly one", triggers))
	}

	edgeIDs := make(map[string]bool)
	for i, e := range g.Edges() {
		path := fmt.Sprintf("edges[%d]", i)
		if edgeIDs[e.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = true

		if !g.Has(e.Source) {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("edge %q references non-existent node %q", e.ID, e.Source))
		}
		if !g.Has(e.Target) {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("edge %q references non-existent node %q", e.ID, e.Target))
		}
		if e.Source == e.Target {
			result.AddError(path, schema.ErrCodeCycleDetected,
				fmt.Sprintf("edge %q connects node %q to itself", e.ID, e.Source))
		}
	}

	for _, n := range nodes {
		validateParent(g, n, result)
	}
	return result
}

func validateParent(g *graph.Graph, n schema.Node, result *schema.ValidationResult) {
	if n.ParentID == "" {
		return
	}
	parent, ok := g.Node(n.ParentID)
	if !ok {
		result.AddNodeError(n.ID, schema.ErrCodeValidation,
			fmt.Sprintf("parent %q does not exist", n.ParentID))
		return
	}
	if parent.Kind != schema.KindGroup {
		result.AddNodeError(n.ID, schema.ErrCodeValidation,
			fmt.Sprintf("parent %q is a %s, not a group", n.ParentID, parent.Kind))
	}
	if _, cycle := g.Ancestors(n.ID); cycle {
		result.AddNodeError(n.ID, schema.ErrCodeCycleDetected, "parent chain contains a cycle")
	}
}
