package validation

import (
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// GraphValidator orchestrates the three-stage validation pipeline:
// 1. Structural (ids, trigger, edges, parents)
// 2. Semantic (schedules, template references)
// 3. DAG (ordering completeness, reachability from the trigger)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewGraphValidator creates a GraphValidator with the definition schema compiled.
func NewGraphValidator() (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &GraphValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and DAG stages are skipped.
func (gv *GraphValidator) Validate(g *graph.Graph) *schema.ValidationResult {
	if g == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "graph is nil")
		return r
	}

	result := validateStructural(g)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(g))

	if result.Valid() {
		result.Merge(validateDAG(g))
	}
	return result
}

// ValidateDefinition delegates to the underlying JSONSchemaValidator.
func (gv *GraphValidator) ValidateDefinition(def *schema.Definition) error {
	return gv.jsonSchema.ValidateDefinition(def)
}
