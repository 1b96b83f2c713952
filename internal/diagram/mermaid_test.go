package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	output := RenderMermaid(Build("Orders", sampleGraph()))

	assert.Contains(t, output, "flowchart TD\n")
	assert.Contains(t, output, "%% Orders\n")

	// Shapes by kind.
	assert.Contains(t, output, `n_t(("Start"))`)
	assert.Contains(t, output, `n_b{"Check"}`)
	assert.Contains(t, output, `n_c(["Wait"])`)
	assert.Contains(t, output, `n_n>"Remember"]`)

	// Group subgraph with its member nested inside.
	assert.Contains(t, output, "    subgraph n_g[\"Fetch stage\"]\n        n_a[\"Fetch\"]\n    end\n")

	// Edges, including the branch label.
	assert.Contains(t, output, "n_t --> n_a\n")
	assert.Contains(t, output, "n_b -->|true| n_c\n")
	assert.NotContains(t, output, "n_p")

	// Status and disabled classes.
	assert.Contains(t, output, "classDef success")
	assert.Contains(t, output, "class n_a success\n")
	assert.Contains(t, output, "class n_b error\n")
	assert.Contains(t, output, "class n_c disabled\n")
	assert.NotContains(t, output, "class n_t ")
}

func TestRenderMermaidEscapesLabels(t *testing.T) {
	g := graph.New([]schema.Node{
		{ID: "t", Kind: schema.KindTrigger, Label: "Start"},
		{ID: "a-1", Kind: schema.KindAction, Label: "Say \"hi\"\nsecond line", Enabled: true},
	}, nil)

	output := RenderMermaid(Build("", g))
	assert.Contains(t, output, `n_a_1["Say #quot;hi#quot;"]`)
	assert.NotContains(t, output, "second line")
	assert.NotContains(t, output, "%%")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "n_a_b_c_d", mermaidSafeID("a-b.c d"))
	assert.Equal(t, "n_end", mermaidSafeID("end"))
}
