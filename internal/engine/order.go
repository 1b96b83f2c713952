package engine

import (
	"cmp"
	"slices"

	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// TieBreak selects how nodes that become ready at the same time are ordered.
type TieBreak int

const (
	// ByInsertion keeps canvas (insertion) order. Used for definition export.
	ByInsertion TieBreak = iota
	// ByPosition orders by absolute x, then y. Used for simulation so the
	// order follows the layout the user sees.
	ByPosition
)

// OrderOptions configures which nodes are ordered and how ties are broken.
// Triggers, placeholders and notes are always excluded.
type OrderOptions struct {
	ExcludeGroups bool
	TieBreak      TieBreak
}

// SimulationOrder is the option set used by the simulation scheduler.
func SimulationOrder() OrderOptions {
	return OrderOptions{ExcludeGroups: true, TieBreak: ByPosition}
}

// ExportOrder is the option set used when building a definition.
func ExportOrder() OrderOptions {
	return OrderOptions{ExcludeGroups: true, TieBreak: ByInsertion}
}

// Plan is the derived execution order of a graph.
type Plan struct {
	Order  []string   // node IDs, each retained node exactly once
	Levels [][]string // dependency depth groups; nodes in a level share no edge
	// Complete is false when a cycle left nodes unsorted and they were
	// appended by position instead.
	Complete bool
}

// Order returns only the node ordering of Plan.
func Order(g *graph.Graph, opts OrderOptions) []string {
	return BuildPlan(g, opts).Order
}

// BuildPlan orders the retained nodes of g with Kahn's algorithm.
// It never fails: nodes left over by a cycle are appended sorted by
// position and the plan is marked incomplete.
func BuildPlan(g *graph.Graph, opts OrderOptions) Plan {
	all := g.Nodes()
	retained := make([]schema.Node, 0, len(all))
	keep := make(map[string]bool, len(all))
	for _, n := range all {
		if retain(n.Kind, opts) {
			retained = append(retained, n)
			keep[n.ID] = true
		}
	}
	if len(retained) == 0 {
		return Plan{Order: []string{}, Levels: [][]string{}, Complete: true}
	}

	less := tieBreaker(g, opts.TieBreak)
	byPosition := tieBreaker(g, ByPosition)

	// Build adjacency restricted to retained nodes. Duplicate edges between
	// the same pair count once.
	inDegree := make(map[string]int, len(retained))
	next := make(map[string][]string, len(retained))
	prev := make(map[string][]string, len(retained))
	seenPair := make(map[[2]string]bool)
	for _, e := range g.Edges() {
		if !keep[e.Source] || !keep[e.Target] || e.Source == e.Target {
			continue
		}
		pair := [2]string{e.Source, e.Target}
		if seenPair[pair] {
			continue
		}
		seenPair[pair] = true
		next[e.Source] = append(next[e.Source], e.Target)
		prev[e.Target] = append(prev[e.Target], e.Source)
		inDegree[e.Target]++
	}

	queue := make([]string, 0, len(retained))
	for _, n := range retained {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	slices.SortStableFunc(queue, less)

	order := make([]string, 0, len(retained))
	emitted := make(map[string]bool, len(retained))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		emitted[id] = true

		var ready []string
		for _, dep := range next[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		slices.SortStableFunc(ready, less)
		queue = append(queue, ready...)
	}

	plan := Plan{Complete: len(order) == len(retained)}
	plan.Levels = computeLevels(order, prev)

	if !plan.Complete {
		var rest []string
		for _, n := range retained {
			if !emitted[n.ID] {
				rest = append(rest, n.ID)
			}
		}
		slices.SortStableFunc(rest, byPosition)
		order = append(order, rest...)
		plan.Levels = append(plan.Levels, rest)
	}
	plan.Order = order
	return plan
}

// ValidateOrder is the strict check for callers handing the order to a
// runtime: every executable node must have been ordered by dependency.
func ValidateOrder(g *graph.Graph, plan Plan) error {
	want := 0
	for _, n := range g.Nodes() {
		if n.Kind.Executable() {
			want++
		}
	}
	got := 0
	for _, id := range plan.Order {
		if n, ok := g.Node(id); ok && n.Kind.Executable() {
			got++
		}
	}

	if !plan.Complete || got != want {
		return schema.NewError(schema.ErrCodeCycleDetected,
			"execution order is incomplete: the graph contains a cycle").
			WithDetails(map[string]any{"ordered": got, "executable": want, "complete": plan.Complete})
	}
	return nil
}

func retain(kind schema.NodeKind, opts OrderOptions) bool {
	switch kind {
	case schema.KindTrigger, schema.KindPlaceholder, schema.KindNote:
		return false
	case schema.KindGroup:
		return !opts.ExcludeGroups
	}
	return true
}

func tieBreaker(g *graph.Graph, mode TieBreak) func(a, b string) int {
	if mode == ByPosition {
		return func(a, b string) int {
			pa, _ := g.AbsolutePosition(a)
			pb, _ := g.AbsolutePosition(b)
			if c := cmp.Compare(pa.X, pb.X); c != 0 {
				return c
			}
			if c := cmp.Compare(pa.Y, pb.Y); c != 0 {
				return c
			}
			return cmp.Compare(g.IndexOf(a), g.IndexOf(b))
		}
	}
	return func(a, b string) int {
		return cmp.Compare(g.IndexOf(a), g.IndexOf(b))
	}
}

// computeLevels groups sorted nodes by dependency depth.
// A node's level is one more than the deepest of its predecessors.
func computeLevels(sorted []string, prev map[string][]string) [][]string {
	depth := make(map[string]int, len(sorted))
	maxLevel := -1
	for _, id := range sorted {
		d := 0
		for _, p := range prev[id] {
			if pd, ok := depth[p]; ok && pd+1 > d {
				d = pd + 1
			}
		}
		depth[id] = d
		if d > maxLevel {
			maxLevel = d
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range sorted {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}
