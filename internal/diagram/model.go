package diagram

import "github.com/rendis/canvasflow/pkg/schema"

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title string
	// Nodes holds the top-level nodes in canvas order. Group members hang
	// off their group's Children.
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string // trigger first, then executable nodes by dependency depth
}

// Node is a single canvas node.
type Node struct {
	ID       string
	Label    string
	Kind     schema.NodeKind
	Status   schema.NodeStatus
	Disabled bool
	Children []*Node
}

// Edge is a connection between two drawn nodes. Label carries the source
// handle, e.g. the true/false branch of an if-else.
type Edge struct {
	From  string
	To    string
	Label string
}

// Walk visits every node depth-first, parents before their children.
func (m *Model) Walk(fn func(n *Node, depth int)) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(m.Nodes, 0)
}

// Lookup returns the node with the given id, wherever it is nested.
func (m *Model) Lookup(id string) *Node {
	var found *Node
	m.Walk(func(n *Node, _ int) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}
