// Package export turns a canvas graph into the definition document consumed
// by the durable-workflow runtime.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Build produces the definition document. Transient status, node sizes and
// add-step placeholders are dropped; the execution order uses insertion
// order tie-breaks and excludes groups. Build never fails on a cycle: the
// order is then best effort, see BuildStrict.
func Build(meta schema.WorkflowMeta, g *graph.Graph) (*schema.Definition, error) {
	def := &schema.Definition{
		ID:             meta.ID,
		Name:           meta.Name,
		Version:        meta.Version,
		Nodes:          []schema.DefinitionNode{},
		Edges:          []schema.Edge{},
		ExecutionOrder: engine.Order(g, engine.ExportOrder()),
	}

	dropped := make(map[string]bool)
	for _, n := range g.Nodes() {
		if n.Kind == schema.KindPlaceholder {
			dropped[n.ID] = true
			continue
		}
		cfg, err := schema.ConfigToMap(n.Config)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "config cannot be encoded").
				WithNode(n.ID).WithCause(err)
		}
		def.Nodes = append(def.Nodes, schema.DefinitionNode{
			ID:       n.ID,
			Type:     n.Kind,
			Label:    n.Label,
			ParentID: n.ParentID,
			Enabled:  n.Enabled,
			Position: n.Position,
			Config:   cfg,
		})
	}

	for _, e := range g.Edges() {
		if dropped[e.Source] || dropped[e.Target] {
			continue
		}
		def.Edges = append(def.Edges, e)
	}
	return def, nil
}

// BuildStrict validates g before building and checks the built document
// against the definition schema. Warnings are returned alongside a
// successful build.
func BuildStrict(meta schema.WorkflowMeta, g *graph.Graph, v validation.Validator) (*schema.Definition, *schema.ValidationResult, error) {
	result := v.Validate(g)
	if err := result.ToError(); err != nil {
		return nil, result, err
	}

	def, err := Build(meta, g)
	if err != nil {
		return nil, result, err
	}
	if err := v.ValidateDefinition(def); err != nil {
		return nil, result, err
	}
	return def, result, nil
}

// Marshal encodes a definition as indented JSON.
func Marshal(def *schema.Definition) ([]byte, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode definition %s: %w", def.ID, err)
	}
	return data, nil
}
