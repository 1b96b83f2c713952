package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/pkg/schema"
)

func validDefinition() *schema.Definition {
	return &schema.Definition{
		ID:      "wf-1",
		Name:    "Orders",
		Version: 3,
		Nodes: []schema.DefinitionNode{
			{ID: "t", Type: schema.KindTrigger, Label: "Start", Enabled: true,
				Config: map[string]any{"triggerType": "manual"}},
			{ID: "a", Type: schema.KindAction, Label: "Fetch", Enabled: true,
				Position: schema.Position{X: 10.5, Y: 20}, Config: map[string]any{"actionType": "http"}},
		},
		Edges:          []schema.Edge{{ID: "e1", Source: "t", Target: "a"}},
		ExecutionOrder: []string{"a"},
	}
}

func newSchemaValidator(t *testing.T) *JSONSchemaValidator {
	t.Helper()
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	return v
}

func TestValidateDefinition_Valid(t *testing.T) {
	assert.NoError(t, newSchemaValidator(t).ValidateDefinition(validDefinition()))
}

func TestValidateDefinition_NilConfigAllowed(t *testing.T) {
	def := validDefinition()
	def.Nodes[1].Config = nil
	assert.NoError(t, newSchemaValidator(t).ValidateDefinition(def))
}

func TestValidateDefinition_Nil(t *testing.T) {
	err := newSchemaValidator(t).ValidateDefinition(nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestValidateDefinition_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*schema.Definition)
		want   string
	}{
		{"missing id", func(d *schema.Definition) { d.ID = "" }, "/id"},
		{"no nodes", func(d *schema.Definition) { d.Nodes = []schema.DefinitionNode{} }, "/nodes"},
		{"null edges", func(d *schema.Definition) { d.Edges = nil }, "/edges"},
		{"empty node type", func(d *schema.Definition) { d.Nodes[0].Type = "" }, "/nodes/0/type"},
		{"empty edge target", func(d *schema.Definition) { d.Edges[0].Target = "" }, "/edges/0/target"},
	}
	v := newSchemaValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := v.ValidateDefinition(def)
			require.Error(t, err)

			var serr *schema.Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, schema.ErrCodeValidation, serr.Code)
			assert.Contains(t, serr.Details["violations"], serr.Message)
			assert.Contains(t, serr.Message, tt.want)
		})
	}
}

func TestValidateDefinition_CrossReferences(t *testing.T) {
	v := newSchemaValidator(t)

	dup := validDefinition()
	dup.Nodes[1].ID = "t"
	err := v.ValidateDefinition(dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate node id "t"`)

	unknown := validDefinition()
	unknown.ExecutionOrder = []string{"a", "ghost"}
	err = v.ValidateDefinition(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestGraphValidator_ValidateDefinition(t *testing.T) {
	assert.NoError(t, newValidator(t).ValidateDefinition(validDefinition()))
}
