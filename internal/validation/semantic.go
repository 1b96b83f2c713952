package validation

import (
	"fmt"

	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// validateSemantic checks node configuration that the runtime would reject:
// unparseable trigger schedules and template references to nodes that no
// longer exist (the latter only warn, since the canvas tolerates them).
func validateSemantic(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, n := range g.Nodes() {
		if cfg, ok := n.Config.(schema.TriggerConfig); ok && cfg.TriggerType == "schedule" {
			if err := ValidateSchedule(cfg.Schedule); err != nil {
				result.AddNodeError(n.ID, schema.ErrCodeValidation, err.Error())
			}
		}

		values, err := schema.ConfigToMap(n.Config)
		if err != nil {
			result.AddNodeError(n.ID, schema.ErrCodeValidation,
				fmt.Sprintf("config cannot be encoded: %v", err))
			continue
		}
		walkStrings(values, func(s string) {
			for _, ref := range expressions.FindReferences(s) {
				if !g.Has(ref.NodeID) {
					result.AddNodeWarning(n.ID, schema.ErrCodeValidation,
						fmt.Sprintf("reference %s points at missing node %q", ref.Raw, ref.NodeID))
				}
			}
		})
	}
	return result
}

// walkStrings calls fn for every string leaf of a JSON-like value.
func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		for _, val := range t {
			walkStrings(val, fn)
		}
	case []any:
		for _, val := range t {
			walkStrings(val, fn)
		}
	}
}
