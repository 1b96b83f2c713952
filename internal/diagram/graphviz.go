package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/canvasflow/pkg/schema"
)

// RenderImage renders a Model with graphviz in the given format (PNG or
// SVG). Groups become dashed clusters. Edges that end on a group have no
// node to attach to and are not drawn.
func RenderImage(ctx context.Context, model *Model, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(firstLine(model.Title))
	}

	gvNodes := make(map[string]*cgraph.Node)
	if err := addGraphvizNodes(graph, model.Nodes, gvNodes); err != nil {
		return nil, err
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr == nil && edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func addGraphvizNodes(parent *cgraph.Graph, nodes []*Node, gvNodes map[string]*cgraph.Node) error {
	for _, node := range nodes {
		if node.Kind == schema.KindGroup {
			sub, err := parent.CreateSubGraphByName("cluster_" + node.ID)
			if err != nil {
				return fmt.Errorf("diagram: create group %s: %w", node.ID, err)
			}
			sub.SetLabel(firstLine(node.Label))
			sub.SetStyle(cgraph.DashedGraphStyle)
			if err := addGraphvizNodes(sub, node.Children, gvNodes); err != nil {
				return err
			}
			continue
		}

		gvNode, err := parent.CreateNodeByName(node.ID)
		if err != nil {
			return fmt.Errorf("diagram: create node %s: %w", node.ID, err)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}
	return nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case schema.KindTrigger:
		gvNode.SetShape(cgraph.CircleShape)
	case schema.KindIfElse:
		gvNode.SetShape(cgraph.DiamondShape)
	case schema.KindWhile, schema.KindLoopUntil:
		gvNode.SetShape(cgraph.HexagonShape)
	case schema.KindTimer, schema.KindApprovalGate:
		gvNode.SetShape(cgraph.EllipseShape)
	case schema.KindNote:
		gvNode.SetShape(cgraph.NoteShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Disabled {
		gvNode.SetStyle(cgraph.DashedNodeStyle)
		gvNode.SetFontColor("#888888")
	}
	applyStatusColor(gvNode, node.Status)
}

func applyStatusColor(gvNode *cgraph.Node, status schema.NodeStatus) {
	switch status {
	case schema.NodeStatusSuccess:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case schema.NodeStatusError:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case schema.NodeStatusRunning:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case schema.NodeStatusSkipped:
		gvNode.SetStyle(cgraph.DashedNodeStyle)
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
	}
}
