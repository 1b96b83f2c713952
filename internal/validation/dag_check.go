package validation

import (
	"fmt"

	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// validateDAG checks that the export ordering covers every executable node
// and warns about executable nodes the trigger can never reach.
func validateDAG(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	plan := engine.BuildPlan(g, engine.ExportOrder())
	if err := engine.ValidateOrder(g, plan); err != nil {
		result.AddError("edges", schema.ErrCodeCycleDetected, "workflow contains a dependency cycle")
		return result // cycle makes reachability analysis meaningless
	}

	trigger, ok := g.Trigger()
	if !ok {
		return result
	}

	next := make(map[string][]string)
	for _, e := range g.Edges() {
		next[e.Source] = append(next[e.Source], e.Target)
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, target := range next[id] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	for _, n := range g.Nodes() {
		if n.Kind.Executable() && !reachable[n.ID] {
			result.AddNodeWarning(n.ID, schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the trigger", n.ID))
		}
	}
	return result
}
