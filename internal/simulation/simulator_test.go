package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/editor"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

const delay = 600 * time.Millisecond

type fakeSink struct {
	mu sync.Mutex
	g  *graph.Graph
}

func (s *fakeSink) Graph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g
}

func (s *fakeSink) SetStatuses(_ context.Context, statuses map[string]schema.NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g = s.g.WithStatuses(statuses)
}

func (s *fakeSink) status(id string) schema.NodeStatus {
	n, _ := s.Graph().Node(id)
	return n.Status
}

func (s *fakeSink) replace(g *graph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g = g
}

type memResults struct {
	mu      sync.Mutex
	batches [][]schema.SimulationResult
}

func (m *memResults) AppendSimulationResults(_ context.Context, _ string, results []schema.SimulationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, results)
	return nil
}

func node(id string, kind schema.NodeKind, x float64, cfg schema.NodeConfig) schema.Node {
	return schema.Node{ID: id, Kind: kind, Label: id, Enabled: true, Position: schema.Position{X: x}, Config: cfg}
}

func edge(id, source, target string) schema.Edge {
	return schema.Edge{ID: id, Source: source, Target: target}
}

func chain() *graph.Graph {
	return graph.New(
		[]schema.Node{
			node("t", schema.KindTrigger, 0, schema.TriggerConfig{TriggerType: "manual"}),
			node("a", schema.KindAction, 100, schema.ActionConfig{ActionType: "http"}),
			node("b", schema.KindAction, 200, schema.ActionConfig{ActionType: "email"}),
			node("c", schema.KindAction, 300, schema.ActionConfig{ActionType: "slack"}),
		},
		[]schema.Edge{edge("e1", "t", "a"), edge("e2", "a", "b"), edge("e3", "b", "c")},
	)
}

func runIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "run-" + string(rune('0'+n))
	}
}

func newFakeClockSim(t *testing.T, g *graph.Graph) (*Simulator, *fakeSink, *clock.Fake) {
	t.Helper()
	sink := &fakeSink{g: g}
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sim := New(sink, Config{WorkflowID: "wf", Delay: delay, Clock: fake, NewRunID: runIDs()})
	return sim, sink, fake
}

func waitTimers(t *testing.T, fake *clock.Fake, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return fake.Pending() == n }, time.Second, time.Millisecond)
}

// Scenario: A(trigger) -> B(action without type) -> C(timer of 0s).
func TestRun_ReportsConfigurationErrors(t *testing.T) {
	g := graph.New(
		[]schema.Node{
			node("A", schema.KindTrigger, 0, schema.TriggerConfig{TriggerType: "manual"}),
			node("B", schema.KindAction, 100, schema.ActionConfig{}),
			node("C", schema.KindTimer, 200, schema.TimerConfig{Duration: 0, Unit: "seconds"}),
		},
		[]schema.Edge{edge("e1", "A", "B"), edge("e2", "B", "C")},
	)
	sink := &fakeSink{g: g}
	sim := New(sink, Config{WorkflowID: "wf", Delay: -1})

	report, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, report.Order)
	assert.False(t, report.Cancelled)
	assert.True(t, report.Complete)
	assert.Equal(t, 2, report.Failed())

	require.Len(t, report.Results, 2)
	assert.Equal(t, "Action type is required", report.Results[0].Summary)
	assert.Equal(t, "Timer duration must be greater than 0", report.Results[1].Summary)
	assert.Equal(t, report.Results[1].Summary, report.Results[1].Error)

	assert.Equal(t, schema.NodeStatusError, sink.status("B"))
	assert.Equal(t, schema.NodeStatusError, sink.status("C"))
	assert.Equal(t, schema.NodeStatusIdle, sink.status("A"))
	assert.Len(t, sim.Results(), 2)
}

func TestRun_StopOnError(t *testing.T) {
	g := graph.New(
		[]schema.Node{
			node("t", schema.KindTrigger, 0, schema.TriggerConfig{}),
			node("a", schema.KindAction, 100, schema.ActionConfig{}),
			node("b", schema.KindAction, 200, schema.ActionConfig{ActionType: "ok"}),
		},
		[]schema.Edge{edge("e1", "t", "a"), edge("e2", "a", "b")},
	)
	sink := &fakeSink{g: g}
	sim := New(sink, Config{Delay: -1, StopOnError: true})

	report, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "a", report.Results[0].NodeID)
	assert.Equal(t, schema.NodeStatusIdle, sink.status("b"))
}

func TestRun_ResetsPreviousResultsAndStatuses(t *testing.T) {
	sink := &fakeSink{g: chain()}
	sim := New(sink, Config{Delay: -1})

	_, err := sim.SimulateNode(context.Background(), "t")
	require.NoError(t, err)
	_, ok := sim.Result("t")
	require.True(t, ok)

	report, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Results, 3)
	_, ok = sim.Result("t")
	assert.False(t, ok)
	assert.Equal(t, schema.NodeStatusIdle, sink.status("t"))
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, schema.NodeStatusSuccess, sink.status(id))
	}
}

func TestRun_CycleStillSimulates(t *testing.T) {
	g := graph.New(
		[]schema.Node{
			node("a", schema.KindAction, 200, schema.ActionConfig{ActionType: "x"}),
			node("b", schema.KindAction, 100, schema.ActionConfig{ActionType: "y"}),
		},
		[]schema.Edge{edge("e1", "a", "b"), edge("e2", "b", "a")},
	)
	report, err := New(&fakeSink{g: g}, Config{Delay: -1}).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Complete)
	assert.Equal(t, []string{"b", "a"}, report.Order)
	assert.Len(t, report.Results, 2)
}

func TestRun_PersistsResultsAndPublishesEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{WorkflowID: "wf"})
	require.NoError(t, err)
	defer cancel()

	results := &memResults{}
	sim := New(&fakeSink{g: chain()}, Config{WorkflowID: "wf", Delay: -1, Hub: hub, Results: results, NewRunID: runIDs()})

	report, err := sim.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)

	require.Len(t, results.batches, 1)
	require.Len(t, results.batches[0], 3)
	assert.Equal(t, "run-1", results.batches[0][0].RunID)

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).EventType)
	}
	assert.Equal(t, []string{
		schema.EventSimulationStarted,
		schema.EventNodeSimulated,
		schema.EventNodeSimulated,
		schema.EventNodeSimulated,
		schema.EventSimulationCompleted,
	}, types)
}

func TestSimulateNode_WaitsForDelay(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())

	done := make(chan *schema.SimulationResult, 1)
	go func() {
		res, err := sim.SimulateNode(context.Background(), "a")
		assert.NoError(t, err)
		done <- res
	}()

	waitTimers(t, fake, 1)
	assert.Equal(t, schema.NodeStatusRunning, sink.status("a"))
	assert.True(t, sim.Simulating("a"))

	fake.Add(delay)
	res := <-done
	assert.Equal(t, schema.NodeStatusSuccess, res.Status)
	assert.Equal(t, `Would run action "http"`, res.Summary)
	assert.Equal(t, fake.Now(), res.FinishedAt)
	assert.Equal(t, schema.NodeStatusSuccess, sink.status("a"))
	assert.False(t, sim.Simulating("a"))
}

func TestSimulateNode_Conflict(t *testing.T) {
	sim, _, fake := newFakeClockSim(t, chain())

	done := make(chan error, 1)
	go func() {
		_, err := sim.SimulateNode(context.Background(), "a")
		done <- err
	}()
	waitTimers(t, fake, 1)

	_, err := sim.SimulateNode(context.Background(), "a")
	assert.True(t, schema.HasCode(err, schema.ErrCodeConflict))

	fake.Add(delay)
	assert.NoError(t, <-done)
}

func TestSimulateNode_NotFound(t *testing.T) {
	sim := New(&fakeSink{g: chain()}, Config{Delay: -1})
	_, err := sim.SimulateNode(context.Background(), "ghost")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestCancelNode_ReturnsToIdleAndRecordsNothing(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())

	done := make(chan error, 1)
	go func() {
		_, err := sim.SimulateNode(context.Background(), "a")
		done <- err
	}()
	waitTimers(t, fake, 1)

	assert.True(t, sim.CancelNode(context.Background(), "a"))
	assert.Equal(t, schema.NodeStatusIdle, sink.status("a"))
	assert.False(t, sim.CancelNode(context.Background(), "a"))

	// The delay still elapses; its continuation sees the cancelled token.
	fake.Add(delay)
	err := <-done
	assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))
	assert.Equal(t, schema.NodeStatusIdle, sink.status("a"))
	_, ok := sim.Result("a")
	assert.False(t, ok)
}

func TestCancelNode_RestartDoesNotInheritCancellation(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())

	first := make(chan error, 1)
	go func() {
		_, err := sim.SimulateNode(context.Background(), "a")
		first <- err
	}()
	waitTimers(t, fake, 1)
	sim.CancelNode(context.Background(), "a")

	second := make(chan error, 1)
	go func() {
		_, err := sim.SimulateNode(context.Background(), "a")
		second <- err
	}()
	waitTimers(t, fake, 2)

	fake.Add(delay)
	assert.True(t, schema.HasCode(<-first, schema.ErrCodeCancelled))
	assert.NoError(t, <-second)
	assert.Equal(t, schema.NodeStatusSuccess, sink.status("a"))
}

func TestSimulateNode_ContextCancelled(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := sim.SimulateNode(ctx, "a")
		done <- err
	}()
	waitTimers(t, fake, 1)

	cancel()
	err := <-done
	assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, schema.NodeStatusIdle, sink.status("a"))
	assert.False(t, sim.Simulating("a"))
}

func TestSimulateNode_DeletedDuringDelay(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())

	done := make(chan error, 1)
	go func() {
		_, err := sim.SimulateNode(context.Background(), "a")
		done <- err
	}()
	waitTimers(t, fake, 1)

	sink.replace(graph.New([]schema.Node{node("t", schema.KindTrigger, 0, schema.TriggerConfig{})}, nil))
	fake.Add(delay)
	assert.True(t, schema.HasCode(<-done, schema.ErrCodeNotFound))
}

func TestCancelWorkflow_StopsRun(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())

	done := make(chan *RunReport, 1)
	go func() {
		report, err := sim.Run(context.Background())
		assert.NoError(t, err)
		done <- report
	}()
	waitTimers(t, fake, 1)
	require.True(t, sim.Simulating("a"))

	sim.CancelWorkflow(context.Background())
	assert.Equal(t, schema.NodeStatusIdle, sink.status("a"))

	fake.Add(delay)
	report := <-done
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, fake.Pending())
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, schema.NodeStatusIdle, sink.status(id))
	}
}

func TestRun_NewRunAbandonsStaleRun(t *testing.T) {
	sim, sink, fake := newFakeClockSim(t, chain())

	first := make(chan *RunReport, 1)
	go func() {
		report, err := sim.Run(context.Background())
		assert.NoError(t, err)
		first <- report
	}()
	waitTimers(t, fake, 1)

	second := make(chan *RunReport, 1)
	go func() {
		report, err := sim.Run(context.Background())
		assert.NoError(t, err)
		second <- report
	}()
	waitTimers(t, fake, 2)

	var stale, fresh *RunReport
	for fresh == nil {
		select {
		case stale = <-first:
		case fresh = <-second:
		case <-time.After(5 * time.Millisecond):
			if fake.Pending() > 0 {
				fake.Add(delay)
			}
		}
	}
	if stale == nil {
		stale = <-first
	}

	assert.True(t, stale.Cancelled)
	assert.Empty(t, stale.Results)
	assert.False(t, fresh.Cancelled)
	assert.Len(t, fresh.Results, 3)
	assert.NotEqual(t, stale.RunID, fresh.RunID)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, schema.NodeStatusSuccess, sink.status(id))
	}
}

// hookSink runs onRead on the nth Graph read.
type hookSink struct {
	*fakeSink
	mu     sync.Mutex
	reads  int
	nth    int
	onRead func()
}

func (h *hookSink) Graph() *graph.Graph {
	h.mu.Lock()
	h.reads++
	fire := h.reads == h.nth
	h.mu.Unlock()
	if fire {
		h.onRead()
	}
	return h.fakeSink.Graph()
}

func TestSimulateNode_AbandonedBeforeResultRecordsNothing(t *testing.T) {
	sink := &hookSink{fakeSink: &fakeSink{g: chain()}, nth: 2}
	sim := New(sink, Config{WorkflowID: "wf", Delay: -1})
	// The second read happens after the node left the in-flight set.
	sink.onRead = func() { sim.CancelWorkflow(context.Background()) }

	res, err := sim.SimulateNode(context.Background(), "a")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))

	_, ok := sim.Result("a")
	assert.False(t, ok)
	assert.Equal(t, schema.NodeStatusIdle, sink.status("a"))
}

func TestSimulate_StaleRunTokenIsRejected(t *testing.T) {
	sink := &fakeSink{g: chain()}
	sim := New(sink, Config{WorkflowID: "wf", Delay: -1})

	stale := sim.abandon(context.Background())
	sim.abandon(context.Background())

	_, err := sim.simulate(context.Background(), "a", "run-x", stale)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeCancelled))
	assert.False(t, sim.Simulating("a"))
	assert.Empty(t, sink.status("a"))
	assert.Empty(t, sim.Results())
}

func TestRun_EditorAsSink(t *testing.T) {
	ed := editor.New(chain(), editor.Config{WorkflowID: "wf"})
	defer ed.Close()

	report, err := New(ed, Config{WorkflowID: "wf", Delay: -1}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Results, 3)

	assert.Equal(t, map[string]schema.NodeStatus{
		"t": schema.NodeStatusIdle,
		"a": schema.NodeStatusSuccess,
		"b": schema.NodeStatusSuccess,
		"c": schema.NodeStatusSuccess,
	}, ed.Graph().Statuses())
	assert.False(t, ed.CanUndo(), "statuses never enter history")
}

func TestRun_ExpressionEngines(t *testing.T) {
	conditions, err := expressions.NewConditions()
	require.NoError(t, err)

	g := graph.New(
		[]schema.Node{
			node("t", schema.KindTrigger, 0, schema.TriggerConfig{TriggerType: "manual"}),
			node("if", schema.KindIfElse, 100, schema.IfElseConfig{Condition: "{{@t:t.count}} > 2"}),
			node("bad", schema.KindIfElse, 200, schema.IfElseConfig{Condition: "x >"}),
		},
		[]schema.Edge{edge("e1", "t", "if"), edge("e2", "if", "bad")},
	)
	sim := New(&fakeSink{g: g}, Config{Delay: -1, Conditions: conditions, JQ: expressions.NewGoJQEngine()})
	report, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, schema.NodeStatusSuccess, report.Results[0].Status)
	assert.Equal(t, schema.NodeStatusError, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Summary, "Condition expression is invalid: ")
}
