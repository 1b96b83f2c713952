package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// RenderMermaid renders a Model as a Mermaid flowchart string. Groups become
// subgraphs; node statuses become classes.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("flowchart TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", firstLine(model.Title))
	}

	writeMermaidNodes(&b, model.Nodes, 1)

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef success fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef error fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")
	b.WriteString("    classDef disabled fill:#e8e8e8,stroke:#999,color:#888,stroke-dasharray:3 3\n")

	model.Walk(func(node *Node, _ int) {
		if node.Kind == schema.KindGroup {
			return
		}
		if cls := mermaidClass(node); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	})

	return b.String()
}

func writeMermaidNodes(b *strings.Builder, nodes []*Node, depth int) {
	indent := strings.Repeat("    ", depth)
	for _, node := range nodes {
		if node.Kind != schema.KindGroup {
			b.WriteString(indent + mermaidNodeDef(node) + "\n")
			continue
		}
		fmt.Fprintf(b, "%ssubgraph %s[\"%s\"]\n", indent, mermaidSafeID(node.ID), mermaidEscapeLabel(firstLine(node.Label)))
		writeMermaidNodes(b, node.Children, depth+1)
		b.WriteString(indent + "end\n")
	}
}

// mermaidNodeDef returns a Mermaid node definition with a shape per kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := `"` + mermaidEscapeLabel(firstLine(node.Label)) + `"`

	switch node.Kind {
	case schema.KindTrigger:
		return fmt.Sprintf("%s((%s))", id, label)
	case schema.KindIfElse:
		return fmt.Sprintf("%s{%s}", id, label)
	case schema.KindWhile, schema.KindLoopUntil:
		return fmt.Sprintf("%s{{%s}}", id, label)
	case schema.KindTimer, schema.KindApprovalGate:
		return fmt.Sprintf("%s([%s])", id, label)
	case schema.KindSubWorkflow:
		return fmt.Sprintf("%s[[%s]]", id, label)
	case schema.KindTransform, schema.KindSetState:
		return fmt.Sprintf("%s[/%s/]", id, label)
	case schema.KindNote, schema.KindPublishEvent:
		return fmt.Sprintf("%s>%s]", id, label)
	default:
		return fmt.Sprintf("%s[%s]", id, label)
	}
}

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	return "n_" + mermaidIDReplacer.Replace(id)
}

var mermaidLabelReplacer = strings.NewReplacer(`"`, "#quot;", "|", "#124;")

func mermaidEscapeLabel(s string) string {
	return mermaidLabelReplacer.Replace(s)
}

// mermaidClass picks the class for a node: its status when it has one,
// otherwise "disabled" for disabled nodes.
func mermaidClass(node *Node) string {
	switch node.Status {
	case schema.NodeStatusSuccess:
		return "success"
	case schema.NodeStatusError:
		return "error"
	case schema.NodeStatusRunning:
		return "running"
	case schema.NodeStatusSkipped:
		return "skipped"
	}
	if node.Disabled {
		return "disabled"
	}
	return ""
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
