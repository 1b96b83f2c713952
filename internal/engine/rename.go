package engine

import (
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Rename changes a node's label and rewrites template references to the
// old label in every other node's config. Strings and nested objects are
// scanned; arrays are left as they are.
func (m *Mutator) Rename(g *graph.Graph, id, label string) (*graph.Graph, error) {
	target, ok := g.Node(id)
	if !ok {
		return g, notFound("node", id)
	}
	if label == "" {
		return g, schema.NewError(schema.ErrCodeValidation, "label is required").WithNode(id)
	}
	if label == target.Label {
		return g, nil
	}

	nodes := g.Nodes()
	for i := range nodes {
		n := &nodes[i]
		if n.ID == id {
			n.Label = label
			continue
		}
		if cfg, changed := rewriteConfig(n.Kind, n.Config, id, target.Label, label); changed {
			n.Config = cfg
		}
	}
	return graph.New(nodes, g.Edges()), nil
}

func rewriteConfig(kind schema.NodeKind, cfg schema.NodeConfig, id, oldLabel, newLabel string) (schema.NodeConfig, bool) {
	m, err := schema.ConfigToMap(cfg)
	if err != nil || m == nil {
		return cfg, false
	}
	out, changed := rewriteValue(m, id, oldLabel, newLabel)
	if !changed {
		return cfg, false
	}
	next, err := schema.ConfigFromMap(kind, out.(map[string]any))
	if err != nil {
		return cfg, false
	}
	return next, true
}

// rewriteValue copies only the maps on the path to a changed string.
func rewriteValue(v any, id, oldLabel, newLabel string) (any, bool) {
	switch t := v.(type) {
	case string:
		return expressions.RewriteLabel(t, id, oldLabel, newLabel)
	case map[string]any:
		var out map[string]any
		for k, val := range t {
			nv, changed := rewriteValue(val, id, oldLabel, newLabel)
			if !changed {
				continue
			}
			if out == nil {
				out = make(map[string]any, len(t))
				for kk, vv := range t {
					out[kk] = vv
				}
			}
			out[k] = nv
		}
		if out == nil {
			return v, false
		}
		return out, true
	}
	return v, false
}
