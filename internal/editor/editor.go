// Package editor owns a workflow's graph and serializes every change to it.
//
// All structural edits go through Dispatch, which applies a command via the
// mutation engine, records history and requests a save according to the
// command's declared effect. Status updates bypass history and saving.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/history"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/persist"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Config holds the collaborators of an Editor. Only WorkflowID is required.
type Config struct {
	WorkflowID   string
	Persister    persist.Persister // nil disables saving
	Mutator      *engine.Mutator
	HistoryDepth int
	Debounce     time.Duration
	Clock        clock.Clock
	Hub          streaming.EventHub
	Logger       *slog.Logger
}

// Outcome reports what Dispatch did.
type Outcome struct {
	Applied bool   `json:"applied"`
	NodeID  string `json:"node_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// Editor is the single owner of a workflow graph.
type Editor struct {
	workflowID string
	mutator    *engine.Mutator
	history    *history.Stack
	saver      *persist.Controller
	hub        streaming.EventHub
	logger     *slog.Logger

	mu    sync.RWMutex
	graph *graph.Graph
}

// New creates an Editor over initial. A nil initial starts a new canvas.
func New(initial *graph.Graph, cfg Config) *Editor {
	if cfg.Mutator == nil {
		cfg.Mutator = engine.NewMutator(engine.MutatorConfig{})
	}
	if cfg.Hub == nil {
		cfg.Hub = streaming.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if initial == nil {
		initial = cfg.Mutator.NewCanvas()
	}

	e := &Editor{
		workflowID: cfg.WorkflowID,
		mutator:    cfg.Mutator,
		history:    history.NewStack(cfg.HistoryDepth),
		hub:        cfg.Hub,
		logger:     cfg.Logger.With(slog.String("component", "editor")),
		graph:      initial,
	}
	if cfg.Persister != nil {
		e.saver = persist.NewController(cfg.Persister, e.Snapshot, persist.ControllerConfig{
			WorkflowID: cfg.WorkflowID,
			Debounce:   cfg.Debounce,
			Clock:      cfg.Clock,
			Logger:     cfg.Logger,
			Hub:        cfg.Hub,
		})
	}
	return e
}

// WorkflowID returns the ID of the edited workflow.
func (e *Editor) WorkflowID() string { return e.workflowID }

// Graph returns the current graph. The value is immutable.
func (e *Editor) Graph() *graph.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph
}

// Snapshot returns the persistable form of the current graph.
func (e *Editor) Snapshot() schema.Snapshot {
	return e.Graph().Snapshot()
}

// Dispatch applies cmd. A rejected command changes nothing and is reported
// through Outcome.Reason rather than as a failure.
func (e *Editor) Dispatch(ctx context.Context, cmd Command) Outcome {
	ctx = logging.WithWorkflowID(ctx, e.workflowID)

	e.mu.Lock()
	cur := e.graph
	next, nodeID, err := cmd.apply(e.mutator, cur)
	if err != nil {
		e.mu.Unlock()
		e.logger.DebugContext(ctx, "command rejected",
			slog.String("command", cmd.Name()),
			slog.String("reason", err.Error()),
		)
		return Outcome{NodeID: nodeID, Reason: err.Error(), Err: err}
	}
	if next == cur {
		e.mu.Unlock()
		return Outcome{NodeID: nodeID, Reason: "no change"}
	}

	eff := cmd.Effect()
	if eff.History {
		e.history.Record(cur)
	} else {
		e.history.ClearRedo()
	}
	e.graph = next
	snap := next.Snapshot()
	e.mu.Unlock()

	e.requestSave(eff.Save, snap)
	e.publish(ctx, schema.EventGraphChanged, nodeID, map[string]any{"command": cmd.Name()})
	e.logger.DebugContext(ctx, "command applied",
		slog.String("command", cmd.Name()),
		slog.String("node_id", nodeID),
	)
	return Outcome{Applied: true, NodeID: nodeID}
}

// Undo restores the snapshot taken before the last recorded change.
func (e *Editor) Undo(ctx context.Context) Outcome {
	return e.restore(ctx, "undo", e.history.Undo)
}

// Redo re-applies the last undone change.
func (e *Editor) Redo(ctx context.Context) Outcome {
	return e.restore(ctx, "redo", e.history.Redo)
}

func (e *Editor) restore(ctx context.Context, op string, pop func(*graph.Graph) (*graph.Graph, bool)) Outcome {
	ctx = logging.WithWorkflowID(ctx, e.workflowID)

	e.mu.Lock()
	cur := e.graph
	restored, ok := pop(cur)
	if !ok {
		e.mu.Unlock()
		return Outcome{Reason: "nothing to " + op}
	}
	// Transient statuses are view state; keep what is currently shown.
	e.graph = restored.WithStatuses(cur.Statuses())
	snap := e.graph.Snapshot()
	e.mu.Unlock()

	e.requestSave(SaveImmediate, snap)
	e.publish(ctx, schema.EventGraphRestored, "", map[string]any{"operation": op})
	return Outcome{Applied: true}
}

// CanUndo reports whether Undo would change the graph.
func (e *Editor) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether Redo would change the graph.
func (e *Editor) CanRedo() bool { return e.history.CanRedo() }

// Load replaces the graph wholesale, e.g. after fetching a stored workflow.
// History is cleared and nothing is saved.
func (e *Editor) Load(g *graph.Graph) {
	e.mu.Lock()
	e.graph = g
	e.mu.Unlock()
	e.history.Reset()
}

// SaveState returns the persistence state, or clean when saving is disabled.
func (e *Editor) SaveState() persist.State {
	if e.saver == nil {
		return persist.StateClean
	}
	return e.saver.State()
}

// LastSaved returns the most recent successful save record, if any.
func (e *Editor) LastSaved() *schema.SavedRecord {
	if e.saver == nil {
		return nil
	}
	return e.saver.LastSaved()
}

// Flush saves a pending debounced edit now.
func (e *Editor) Flush() {
	if e.saver != nil {
		e.saver.Flush()
	}
}

// WaitSaves blocks until in-flight saves return.
func (e *Editor) WaitSaves() {
	if e.saver != nil {
		e.saver.Wait()
	}
}

// Close flushes pending saves and waits for them.
func (e *Editor) Close() {
	if e.saver != nil {
		e.saver.Close()
	}
}

func (e *Editor) requestSave(mode SaveMode, snap schema.Snapshot) {
	if e.saver == nil {
		return
	}
	switch mode {
	case SaveImmediate:
		e.saver.RequestImmediate(snap)
	case SaveDebounced:
		e.saver.RequestDebounced()
	}
}

func (e *Editor) publish(ctx context.Context, eventType, nodeID string, payload any) {
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		WorkflowID: e.workflowID,
		NodeID:     nodeID,
		EventType:  eventType,
		Payload:    payload,
	})
}
