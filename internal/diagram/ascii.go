package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// statusTag returns a short ASCII indicator for a node status.
func statusTag(status schema.NodeStatus) string {
	switch status {
	case schema.NodeStatusSuccess:
		return "[OK]"
	case schema.NodeStatusError:
		return "[FAIL]"
	case schema.NodeStatusRunning:
		return "[RUN]"
	case schema.NodeStatusSkipped:
		return "[SKIP]"
	default:
		return ""
	}
}

// RenderASCII renders a Model as a text diagram: one row of boxes per
// level, followed by the membership of every group.
func RenderASCII(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", firstLine(model.Title))
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			if node := model.Lookup(nodeID); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}

		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	model.Walk(func(node *Node, depth int) {
		if node.Kind == schema.KindGroup {
			renderGroup(&b, node, depth)
		}
	})

	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if tag := statusTag(node.Status); tag != "" {
		contentLines = append(contentLines, tag)
	}
	if node.Disabled {
		contentLines = append(contentLines, "(disabled)")
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len([]rune(line)))
	}
	width := maxLen + 4

	lines := make([]string, 0, len(contentLines)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := range maxHeight {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// renderGroup lists the direct members of a group.
func renderGroup(b *strings.Builder, group *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "\n%s--- group %s ---\n", indent, firstLine(group.Label))
	for _, member := range group.Children {
		tag := ""
		if t := statusTag(member.Status); t != "" {
			tag = " " + t
		}
		fmt.Fprintf(b, "%s  %s (%s)%s\n", indent, firstLine(member.Label), member.Kind, tag)
	}
}
