package validation

import (
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Validator checks canvas graphs and exported definitions before they are
// handed to the durable-workflow runtime.
type Validator interface {
	Validate(g *graph.Graph) *schema.ValidationResult
	ValidateDefinition(def *schema.Definition) error
}
