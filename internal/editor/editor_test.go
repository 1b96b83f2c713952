package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/persist"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

type memPersister struct {
	mu    sync.Mutex
	saves []schema.Snapshot
}

func (p *memPersister) Save(_ context.Context, id string, snap schema.Snapshot) (*schema.SavedRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, snap)
	return &schema.SavedRecord{WorkflowID: id, Version: int64(len(p.saves))}, nil
}

func (p *memPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

type fixture struct {
	ed        *Editor
	persister *memPersister
	clock     *clock.Fake
	hub       *streaming.MemoryHub
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

// newFixture builds an editor over trigger "t" -> action "a" -> timer "b".
func newFixture(t *testing.T) *fixture {
	t.Helper()
	nodes := []schema.Node{
		{ID: "t", Kind: schema.KindTrigger, Label: "Start", Enabled: true, Config: schema.TriggerConfig{TriggerType: "manual"}},
		{ID: "a", Kind: schema.KindAction, Label: "Fetch", Enabled: true, Position: schema.Position{X: 100, Y: 100}, Config: schema.ActionConfig{ActionType: "http"}},
		{ID: "b", Kind: schema.KindTimer, Label: "Wait", Enabled: true, Position: schema.Position{X: 200, Y: 140}, Config: schema.TimerConfig{Duration: 1, Unit: "seconds"}},
	}
	edges := []schema.Edge{{ID: "e1", Source: "t", Target: "a"}, {ID: "e2", Source: "a", Target: "b"}}

	f := &fixture{
		persister: &memPersister{},
		clock:     clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		hub:       streaming.NewMemoryHub(),
	}
	f.ed = New(graph.New(nodes, edges), Config{
		WorkflowID: "wf-1",
		Persister:  f.persister,
		Mutator:    engine.NewMutator(engine.MutatorConfig{IDGen: seqIDs()}),
		Clock:      f.clock,
		Hub:        f.hub,
		Logger:     slog.New(slog.DiscardHandler),
	})
	t.Cleanup(f.ed.Close)
	return f
}

func (f *fixture) saves() int {
	f.ed.WaitSaves()
	return f.persister.count()
}

func TestNewStartsCanvas(t *testing.T) {
	ed := New(nil, Config{WorkflowID: "wf", Logger: slog.New(slog.DiscardHandler)})
	defer ed.Close()

	_, ok := ed.Graph().Trigger()
	assert.True(t, ok)
	assert.Equal(t, 2, ed.Graph().Len())
	assert.Equal(t, persist.StateClean, ed.SaveState())
	assert.Nil(t, ed.LastSaved())
}

func TestDispatch_StructuralRecordsHistoryAndSavesNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.ed.Dispatch(ctx, InsertNode{Request: engine.InsertRequest{Kind: schema.KindNote}})
	require.True(t, out.Applied, out.Reason)
	assert.Equal(t, "id1", out.NodeID)
	assert.True(t, f.ed.CanUndo())
	assert.Equal(t, 1, f.saves())
	assert.Equal(t, persist.StateClean, f.ed.SaveState())
	require.NotNil(t, f.ed.LastSaved())
}

func TestDispatch_RejectedCommandIsNoop(t *testing.T) {
	f := newFixture(t)
	before := f.ed.Graph()

	out := f.ed.Dispatch(context.Background(), DeleteNode{ID: "t"})
	assert.False(t, out.Applied)
	assert.NotEmpty(t, out.Reason)
	assert.True(t, schema.HasCode(out.Err, schema.ErrCodePrecondition))

	assert.Same(t, before, f.ed.Graph())
	assert.False(t, f.ed.CanUndo())
	assert.Equal(t, 0, f.saves())

	out = f.ed.Dispatch(context.Background(), Group{IDs: []string{"a"}})
	assert.False(t, out.Applied)
	assert.Same(t, before, f.ed.Graph())
	assert.False(t, f.ed.CanUndo())
}

func TestDispatch_UnchangedIsNotApplied(t *testing.T) {
	f := newFixture(t)
	out := f.ed.Dispatch(context.Background(), Rename{ID: "a", Label: "Fetch"})
	assert.False(t, out.Applied)
	assert.Equal(t, "no change", out.Reason)
	assert.NoError(t, out.Err)
}

func TestDispatch_FieldEditsAreDebouncedWithoutHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.ed.Dispatch(ctx, Rename{ID: "a", Label: "F"}).Applied)
	require.True(t, f.ed.Dispatch(ctx, Rename{ID: "a", Label: "Fe"}).Applied)
	require.True(t, f.ed.Dispatch(ctx, UpdateConfig{ID: "b", Patch: map[string]any{"duration": 5}}).Applied)
	require.True(t, f.ed.Dispatch(ctx, SetEnabled{ID: "b", Enabled: false}).Applied)

	assert.False(t, f.ed.CanUndo())
	assert.Equal(t, persist.StateDirtyDebounced, f.ed.SaveState())
	assert.Equal(t, 0, f.saves())

	f.clock.Add(persist.DefaultDebounce)
	assert.Equal(t, 1, f.saves(), "edits within the window coalesce into one save")

	saved := f.persister.saves[0]
	var labels []string
	for _, n := range saved.Nodes {
		labels = append(labels, n.Label)
	}
	assert.Contains(t, labels, "Fe")
}

func TestDispatch_MoveRecordsHistoryAndDebounces(t *testing.T) {
	f := newFixture(t)

	out := f.ed.Dispatch(context.Background(), MoveNode{ID: "a", Position: schema.Position{X: 1, Y: 1}})
	require.True(t, out.Applied)
	assert.True(t, f.ed.CanUndo())
	assert.Equal(t, 0, f.saves())

	f.clock.Add(persist.DefaultDebounce)
	assert.Equal(t, 1, f.saves())
}

func TestDispatch_StructuralSaveCancelsPendingDebounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ed.Dispatch(ctx, Rename{ID: "a", Label: "Renamed"})
	f.ed.Dispatch(ctx, Disconnect{EdgeID: "e2"})
	f.clock.Add(time.Hour)

	assert.Equal(t, 1, f.saves())
	saved := f.persister.saves[0]
	assert.Len(t, saved.Edges, 1)
	assert.Equal(t, "Renamed", saved.Nodes[1].Label)
}

func TestUndoRedoIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.ed.Graph()
	require.True(t, f.ed.Dispatch(ctx, Group{IDs: []string{"a", "b"}}).Applied)
	after := f.ed.Graph()

	require.True(t, f.ed.Undo(ctx).Applied)
	assert.Same(t, before, f.ed.Graph())
	require.True(t, f.ed.Redo(ctx).Applied)
	assert.Same(t, after, f.ed.Graph())
	require.True(t, f.ed.Undo(ctx).Applied)
	assert.Same(t, before, f.ed.Graph())

	assert.Equal(t, 4, f.saves(), "one structural save plus one per undo/redo")

	assert.False(t, f.ed.Undo(ctx).Applied)
}

func TestUndoKeepsTransientStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ed.Dispatch(ctx, DeleteNode{ID: "b"})
	f.ed.SetStatus(ctx, "a", schema.NodeStatusError)

	require.True(t, f.ed.Undo(ctx).Applied)
	a, _ := f.ed.Graph().Node("a")
	assert.Equal(t, schema.NodeStatusError, a.Status)
	assert.True(t, f.ed.Graph().Has("b"))
}

func TestRedoClearedByNewEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ed.Dispatch(ctx, DeleteNode{ID: "b"})
	f.ed.Undo(ctx)
	require.True(t, f.ed.CanRedo())

	f.ed.Dispatch(ctx, Disconnect{EdgeID: "e1"})
	assert.False(t, f.ed.CanRedo())
}

func TestFieldEditAfterUndoDropsRedo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ed.Dispatch(ctx, DeleteNode{ID: "b"})
	f.ed.Undo(ctx)
	require.True(t, f.ed.CanRedo())

	require.True(t, f.ed.Dispatch(ctx, Rename{ID: "a", Label: "Renamed"}).Applied)
	assert.False(t, f.ed.CanRedo())

	assert.False(t, f.ed.Redo(ctx).Applied)
	a, _ := f.ed.Graph().Node("a")
	assert.Equal(t, "Renamed", a.Label)
	assert.True(t, f.ed.Graph().Has("b"))
}

func TestStatusUpdatesBypassHistoryAndSaving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ed.SetStatuses(ctx, map[string]schema.NodeStatus{"a": schema.NodeStatusRunning, "b": schema.NodeStatusIdle})
	a, _ := f.ed.Graph().Node("a")
	assert.Equal(t, schema.NodeStatusRunning, a.Status)

	assert.False(t, f.ed.CanUndo())
	assert.Equal(t, persist.StateClean, f.ed.SaveState())
	f.clock.Add(time.Hour)
	assert.Equal(t, 0, f.saves())

	for _, n := range f.ed.Snapshot().Nodes {
		assert.Empty(t, n.Status, "snapshots never carry status")
	}

	f.ed.ResetStatuses(ctx)
	for _, n := range f.ed.Graph().Nodes() {
		assert.Equal(t, schema.NodeStatusIdle, n.Status)
	}
}

func TestApplyRuntimeStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	status := func(id string) schema.NodeStatus {
		n, _ := f.ed.Graph().Node(id)
		return n.Status
	}

	f.ed.ApplyRuntimeStatus(ctx, schema.RuntimeStatus{RuntimeStatus: schema.RuntimeStatusRunning, CurrentNodeID: "a"})
	assert.Equal(t, schema.NodeStatusRunning, status("a"))

	f.ed.ApplyRuntimeStatus(ctx, schema.RuntimeStatus{RuntimeStatus: schema.RuntimeStatusRunning, CurrentNodeID: "b"})
	assert.Equal(t, schema.NodeStatusSuccess, status("a"))
	assert.Equal(t, schema.NodeStatusRunning, status("b"))

	f.ed.ApplyRuntimeStatus(ctx, schema.RuntimeStatus{RuntimeStatus: schema.RuntimeStatusFailed, CurrentNodeID: "b"})
	assert.Equal(t, schema.NodeStatusError, status("b"))

	assert.False(t, f.ed.CanUndo())
	assert.Equal(t, 0, f.saves())
}

func TestDispatchPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ch, cancel, err := f.hub.Subscribe(context.Background(), streaming.EventFilter{
		EventTypes: []string{schema.EventGraphChanged, schema.EventGraphRestored},
	})
	require.NoError(t, err)
	defer cancel()

	f.ed.Dispatch(context.Background(), DeleteNode{ID: "a"})
	f.ed.Undo(context.Background())

	var got []string
	for len(got) < 2 {
		select {
		case evt := <-ch:
			got = append(got, evt.EventType)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{schema.EventGraphChanged, schema.EventGraphRestored}, got)
}

func TestLoadResetsHistory(t *testing.T) {
	f := newFixture(t)
	f.ed.Dispatch(context.Background(), DeleteNode{ID: "b"})
	require.True(t, f.ed.CanUndo())

	g := graph.New([]schema.Node{{ID: "x", Kind: schema.KindTrigger}}, nil)
	f.ed.Load(g)
	assert.Same(t, g, f.ed.Graph())
	assert.False(t, f.ed.CanUndo())
}

func TestCommandEffects(t *testing.T) {
	tests := []struct {
		cmd  Command
		want Effect
	}{
		{InsertNode{}, structural},
		{DeleteNode{}, structural},
		{Connect{}, structural},
		{Disconnect{}, structural},
		{Group{}, structural},
		{Ungroup{}, structural},
		{Detach{}, structural},
		{MorphType{}, structural},
		{Clear{}, structural},
		{MoveNode{}, movement},
		{Rename{}, fieldEdit},
		{UpdateConfig{}, fieldEdit},
		{SetEnabled{}, fieldEdit},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Name(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Effect())
		})
	}
}
