package engine

import (
	"errors"
	"testing"

	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// --- helpers ---

func at(id string, kind schema.NodeKind, x, y float64) schema.Node {
	return schema.Node{ID: id, Kind: kind, Label: id, Enabled: true, Position: schema.Position{X: x, Y: y}}
}

func edge(src, dst string) schema.Edge {
	return schema.Edge{ID: src + "->" + dst, Source: src, Target: dst}
}

func assertError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var cfErr *schema.Error
	if !errors.As(err, &cfErr) {
		t.Fatalf("expected *schema.Error, got %T: %v", err, err)
	}
	if cfErr.Code != expectedCode {
		t.Errorf("expected code %s, got %s: %s", expectedCode, cfErr.Code, cfErr.Message)
	}
}

func positions(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, id := range order {
		m[id] = i
	}
	return m
}

// assertEachOnce checks every retained node appears exactly once.
func assertEachOnce(t *testing.T, g *graph.Graph, order []string, opts OrderOptions) {
	t.Helper()
	count := make(map[string]int)
	for _, id := range order {
		count[id]++
	}
	for _, n := range g.Nodes() {
		want := 0
		if retain(n.Kind, opts) {
			want = 1
		}
		if count[n.ID] != want {
			t.Errorf("node %s (%s) appears %d times, want %d", n.ID, n.Kind, count[n.ID], want)
		}
	}
}

// --- tests ---

func TestOrder_LinearChain(t *testing.T) {
	g := graph.New([]schema.Node{
		at("t", schema.KindTrigger, 0, 0),
		at("a", schema.KindAction, 300, 0),
		at("b", schema.KindAction, 100, 0),
		at("c", schema.KindAction, 200, 0),
	}, []schema.Edge{edge("t", "a"), edge("a", "b"), edge("b", "c")})

	plan := BuildPlan(g, SimulationOrder())
	if !plan.Complete {
		t.Fatal("expected complete plan")
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if plan.Order[i] != id {
			t.Fatalf("expected order %v, got %v", want, plan.Order)
		}
	}
	if len(plan.Levels) != 3 {
		t.Errorf("expected 3 levels, got %d", len(plan.Levels))
	}
}

func TestOrder_Diamond(t *testing.T) {
	g := graph.New([]schema.Node{
		at("a", schema.KindAction, 0, 0),
		at("c", schema.KindAction, 100, 200),
		at("b", schema.KindAction, 100, 0),
		at("d", schema.KindAction, 200, 0),
	}, []schema.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")})

	plan := BuildPlan(g, SimulationOrder())
	idx := positions(plan.Order)
	if idx["a"] >= idx["b"] || idx["a"] >= idx["c"] || idx["b"] >= idx["d"] || idx["c"] >= idx["d"] {
		t.Errorf("incorrect topological order: %v", plan.Order)
	}
	// b and c become ready together; b is higher on the canvas.
	if idx["b"] > idx["c"] {
		t.Errorf("expected b before c by position, got %v", plan.Order)
	}
	if len(plan.Levels) != 3 || len(plan.Levels[1]) != 2 {
		t.Errorf("expected levels [[a] [b c] [d]], got %v", plan.Levels)
	}
}

func TestOrder_TieBreakByInsertion(t *testing.T) {
	g := graph.New([]schema.Node{
		at("right", schema.KindAction, 500, 0),
		at("left", schema.KindAction, 0, 0),
	}, nil)

	order := Order(g, ExportOrder())
	if order[0] != "right" || order[1] != "left" {
		t.Errorf("expected insertion order [right left], got %v", order)
	}

	order = Order(g, SimulationOrder())
	if order[0] != "left" || order[1] != "right" {
		t.Errorf("expected position order [left right], got %v", order)
	}
}

func TestOrder_TieBreakUsesAbsolutePosition(t *testing.T) {
	g := graph.New([]schema.Node{
		{ID: "grp", Kind: schema.KindGroup, Position: schema.Position{X: 1000, Y: 0}},
		{ID: "inside", Kind: schema.KindAction, ParentID: "grp", Position: schema.Position{X: 0, Y: 0}},
		at("outside", schema.KindAction, 500, 0),
	}, nil)

	order := Order(g, SimulationOrder())
	if len(order) != 2 || order[0] != "outside" || order[1] != "inside" {
		t.Errorf("expected [outside inside], got %v", order)
	}
}

func TestOrder_Exclusions(t *testing.T) {
	g := graph.New([]schema.Node{
		at("t", schema.KindTrigger, 0, 0),
		at("p", schema.KindPlaceholder, 10, 0),
		at("n", schema.KindNote, 20, 0),
		at("g", schema.KindGroup, 30, 0),
		at("a", schema.KindAction, 40, 0),
		at("x", schema.NodeKind("future-kind"), 50, 0),
	}, []schema.Edge{edge("t", "a"), edge("a", "p")})

	withGroups := OrderOptions{TieBreak: ByPosition}
	assertEachOnce(t, g, Order(g, withGroups), withGroups)
	assertEachOnce(t, g, Order(g, SimulationOrder()), SimulationOrder())

	if got := Order(g, SimulationOrder()); len(got) != 2 {
		t.Errorf("expected [a x], got %v", got)
	}
}

func TestOrder_CycleFallsBackToPosition(t *testing.T) {
	g := graph.New([]schema.Node{
		at("a", schema.KindAction, 0, 0),
		at("c", schema.KindAction, 300, 0),
		at("b", schema.KindAction, 200, 0),
		at("d", schema.KindAction, 100, 0),
	}, []schema.Edge{edge("a", "b"), edge("b", "c"), edge("c", "b")})

	plan := BuildPlan(g, SimulationOrder())
	if plan.Complete {
		t.Fatal("expected incomplete plan for cyclic graph")
	}
	want := []string{"a", "d", "b", "c"}
	for i, id := range want {
		if plan.Order[i] != id {
			t.Fatalf("expected %v, got %v", want, plan.Order)
		}
	}
	assertEachOnce(t, g, plan.Order, SimulationOrder())
}

func TestOrder_SelfLoopAndDuplicateEdges(t *testing.T) {
	g := graph.New([]schema.Node{
		at("a", schema.KindAction, 0, 0),
		at("b", schema.KindAction, 100, 0),
	}, []schema.Edge{
		edge("a", "a"),
		edge("a", "b"),
		{ID: "dup", Source: "a", Target: "b"},
	})

	plan := BuildPlan(g, SimulationOrder())
	if !plan.Complete || len(plan.Order) != 2 {
		t.Errorf("expected complete [a b], got %+v", plan)
	}
}

func TestOrder_DanglingEdgesIgnored(t *testing.T) {
	g := graph.New([]schema.Node{
		at("a", schema.KindAction, 0, 0),
	}, []schema.Edge{edge("ghost", "a"), edge("a", "ghost")})

	plan := BuildPlan(g, SimulationOrder())
	if !plan.Complete || len(plan.Order) != 1 {
		t.Errorf("expected [a], got %+v", plan)
	}
}

func TestOrder_Empty(t *testing.T) {
	g := graph.New([]schema.Node{at("t", schema.KindTrigger, 0, 0)}, nil)

	plan := BuildPlan(g, SimulationOrder())
	if !plan.Complete || len(plan.Order) != 0 {
		t.Errorf("expected empty complete plan, got %+v", plan)
	}
	if err := ValidateOrder(g, plan); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOrder_CompletenessDisconnectedAndCyclic(t *testing.T) {
	nodes := []schema.Node{at("t", schema.KindTrigger, 0, 0)}
	var edges []schema.Edge
	// Three fragments: a chain, a cycle, and isolated nodes.
	for i, id := range []string{"c1", "c2", "c3", "y1", "y2", "y3", "i1", "i2"} {
		nodes = append(nodes, at(id, schema.KindAction, float64((i*37)%5)*100, float64(i)*10))
	}
	edges = append(edges,
		edge("t", "c1"), edge("c1", "c2"), edge("c2", "c3"),
		edge("y1", "y2"), edge("y2", "y3"), edge("y3", "y1"),
	)
	g := graph.New(nodes, edges)

	for _, opts := range []OrderOptions{SimulationOrder(), ExportOrder(), {}} {
		assertEachOnce(t, g, Order(g, opts), opts)
	}
}

func TestValidateOrder(t *testing.T) {
	acyclic := graph.New([]schema.Node{
		at("t", schema.KindTrigger, 0, 0),
		at("a", schema.KindAction, 100, 0),
		at("b", schema.KindTimer, 200, 0),
	}, []schema.Edge{edge("t", "a"), edge("a", "b")})
	if err := ValidateOrder(acyclic, BuildPlan(acyclic, ExportOrder())); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cyclic := graph.New([]schema.Node{
		at("a", schema.KindAction, 100, 0),
		at("b", schema.KindTimer, 200, 0),
	}, []schema.Edge{edge("a", "b"), edge("b", "a")})
	assertError(t, ValidateOrder(cyclic, BuildPlan(cyclic, ExportOrder())), schema.ErrCodeCycleDetected)

	// A plan that lost a node is rejected even when marked complete.
	partial := Plan{Order: []string{"a"}, Complete: true}
	assertError(t, ValidateOrder(acyclic, partial), schema.ErrCodeCycleDetected)
}
