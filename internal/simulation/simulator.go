// Package simulation dry-runs a workflow graph without contacting the
// runtime: every node is marked running, held for a fixed delay and then
// checked against a kind-specific predicate.
//
// Cancellation is cooperative. A cancelled node's delay still elapses, but
// its continuation finds its token cancelled and records nothing.
package simulation

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/engine"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

// DefaultDelay is the simulated latency of every node.
const DefaultDelay = 600 * time.Millisecond

// StatusSink is where the simulator reads the graph and writes transient
// node statuses. *editor.Editor satisfies it.
type StatusSink interface {
	Graph() *graph.Graph
	SetStatuses(ctx context.Context, statuses map[string]schema.NodeStatus)
}

// ResultStore persists simulation results. *store.LibSQLStore satisfies it.
type ResultStore interface {
	AppendSimulationResults(ctx context.Context, workflowID string, results []schema.SimulationResult) error
}

// Config holds the collaborators of a Simulator.
type Config struct {
	WorkflowID  string
	Delay       time.Duration // 0 = DefaultDelay, negative = no delay
	StopOnError bool
	Clock       clock.Clock
	Hub         streaming.EventHub
	Logger      *slog.Logger
	Results     ResultStore // nil = results kept in memory only
	Conditions  *expressions.Conditions
	JQ          *expressions.GoJQEngine
	NewRunID    func() string
}

// RunReport summarizes one whole-workflow simulation.
type RunReport struct {
	RunID     string                    `json:"run_id"`
	Order     []string                  `json:"order"`
	Results   []schema.SimulationResult `json:"results"`
	Complete  bool                      `json:"complete"` // false when a cycle forced a best-effort order
	Cancelled bool                      `json:"cancelled"`
}

// Failed counts the error results of the run.
func (r *RunReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == schema.NodeStatusError {
			n++
		}
	}
	return n
}

// token is the cancellation handle of one in-flight node simulation.
type token struct {
	once sync.Once
	done chan struct{}
}

func newToken() *token { return &token{done: make(chan struct{})} }

func (t *token) cancel() { t.once.Do(func() { close(t.done) }) }

func (t *token) cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Simulator runs dry-runs against a StatusSink.
type Simulator struct {
	sink    StatusSink
	cfg     Config
	checker checker
	clock   clock.Clock
	hub     streaming.EventHub
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]*token
	runToken uint64
	results  map[string]schema.SimulationResult
}

// New creates a Simulator writing statuses to sink.
func New(sink StatusSink, cfg Config) *Simulator {
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Hub == nil {
		cfg.Hub = streaming.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	return &Simulator{
		sink:     sink,
		cfg:      cfg,
		checker:  checker{conditions: cfg.Conditions, jq: cfg.JQ, now: cfg.Clock.Now},
		clock:    cfg.Clock,
		hub:      cfg.Hub,
		logger:   cfg.Logger,
		inflight: make(map[string]*token),
		results:  make(map[string]schema.SimulationResult),
	}
}

// SimulateNode dry-runs a single node. It fails with CONFLICT if the node is
// already being simulated and with CANCELLED if CancelNode was called, or
// ctx ended, before the result was recorded.
func (s *Simulator) SimulateNode(ctx context.Context, nodeID string) (*schema.SimulationResult, error) {
	s.mu.Lock()
	run := s.runToken
	s.mu.Unlock()

	res, err := s.simulate(ctx, nodeID, "", run)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, []schema.SimulationResult{*res})
	return res, nil
}

// CancelNode cancels an in-flight node simulation and returns the node to
// idle. It reports false if the node was not being simulated.
func (s *Simulator) CancelNode(ctx context.Context, nodeID string) bool {
	s.mu.Lock()
	t, ok := s.inflight[nodeID]
	if ok {
		t.cancel()
		delete(s.inflight, nodeID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.sink.SetStatuses(ctx, map[string]schema.NodeStatus{nodeID: schema.NodeStatusIdle})
	s.publish(ctx, schema.EventNodeCancelled, nodeID, nil)
	return true
}

// Simulating reports whether a node simulation is in flight.
func (s *Simulator) Simulating(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[nodeID]
	return ok
}

// Run simulates every executable node sequentially in simulation order.
// Previous results are discarded. Starting another Run, or calling
// CancelWorkflow, cancels this one's in-flight node and makes it stop.
func (s *Simulator) Run(ctx context.Context) (*RunReport, error) {
	run := s.abandon(ctx)
	s.mu.Lock()
	s.results = make(map[string]schema.SimulationResult)
	s.mu.Unlock()

	report := &RunReport{RunID: s.cfg.NewRunID(), Results: []schema.SimulationResult{}}
	ctx = logging.WithRunID(logging.WithWorkflowID(ctx, s.cfg.WorkflowID), report.RunID)
	log := logging.LogWith(ctx, s.logger)

	g := s.sink.Graph()
	idle := make(map[string]schema.NodeStatus, g.Len())
	for _, n := range g.Nodes() {
		idle[n.ID] = schema.NodeStatusIdle
	}
	s.sink.SetStatuses(ctx, idle)

	plan := engine.BuildPlan(g, engine.SimulationOrder())
	report.Order = plan.Order
	report.Complete = plan.Complete
	if !plan.Complete {
		log.Warn("simulating a graph with a cycle: order is best effort")
	}
	s.publish(ctx, schema.EventSimulationStarted, "", map[string]any{"run_id": report.RunID, "order": plan.Order})
	log.Info("simulation started", "nodes", len(plan.Order))

	for _, id := range plan.Order {
		if !s.current(run) || ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		res, err := s.simulate(ctx, id, report.RunID, run)
		if err != nil {
			if schema.HasCode(err, schema.ErrCodeCancelled) || schema.HasCode(err, schema.ErrCodeNotFound) {
				log.Debug("node simulation abandoned", "node_id", id, "error", err)
				continue
			}
			return report, err
		}
		report.Results = append(report.Results, *res)

		if s.cfg.StopOnError && res.Status == schema.NodeStatusError {
			break
		}
	}
	if !s.current(run) || ctx.Err() != nil {
		report.Cancelled = true
	}

	done := context.WithoutCancel(ctx)
	s.persist(done, report.Results)
	if report.Cancelled {
		s.publish(done, schema.EventSimulationCancelled, "", map[string]any{"run_id": report.RunID})
		log.Info("simulation cancelled", "simulated", len(report.Results))
	} else {
		s.publish(done, schema.EventSimulationCompleted, "", map[string]any{
			"run_id": report.RunID, "failed": report.Failed(),
		})
		log.Info("simulation completed", "simulated", len(report.Results), "failed", report.Failed())
	}
	return report, nil
}

// CancelWorkflow abandons the current run, if any, and cancels every
// in-flight node simulation.
func (s *Simulator) CancelWorkflow(ctx context.Context) {
	s.abandon(ctx)
}

// abandon invalidates the current run token and cancels every in-flight
// node. It returns the new token.
func (s *Simulator) abandon(ctx context.Context) uint64 {
	s.mu.Lock()
	s.runToken++
	run := s.runToken
	ids := make([]string, 0, len(s.inflight))
	for id := range s.inflight {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.CancelNode(ctx, id)
	}
	return run
}

// Results returns the results recorded since the last Run started.
func (s *Simulator) Results() map[string]schema.SimulationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.results)
}

// Result returns the latest result of one node.
func (s *Simulator) Result(nodeID string) (schema.SimulationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[nodeID]
	return r, ok
}

func (s *Simulator) current(run uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runToken == run
}

// simulate dry-runs one node on behalf of run. A node whose run is
// abandoned records no result and returns to idle.
func (s *Simulator) simulate(ctx context.Context, nodeID, runID string, run uint64) (*schema.SimulationResult, error) {
	if _, ok := s.sink.Graph().Node(nodeID); !ok {
		return nil, schema.NewError(schema.ErrCodeNotFound, "node not found").WithNode(nodeID)
	}

	s.mu.Lock()
	if s.runToken != run {
		s.mu.Unlock()
		return nil, abandoned(nodeID)
	}
	if _, busy := s.inflight[nodeID]; busy {
		s.mu.Unlock()
		return nil, schema.NewError(schema.ErrCodeConflict, "node is already being simulated").WithNode(nodeID)
	}
	t := newToken()
	s.inflight[nodeID] = t
	s.mu.Unlock()

	s.sink.SetStatuses(ctx, map[string]schema.NodeStatus{nodeID: schema.NodeStatusRunning})

	if s.cfg.Delay > 0 {
		select {
		case <-s.clock.After(s.cfg.Delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	if t.cancelled() {
		s.mu.Unlock()
		return nil, schema.NewError(schema.ErrCodeCancelled, "node simulation was cancelled").WithNode(nodeID)
	}
	delete(s.inflight, nodeID)
	stale := s.runToken != run
	s.mu.Unlock()
	if stale {
		s.sink.SetStatuses(context.WithoutCancel(ctx), map[string]schema.NodeStatus{nodeID: schema.NodeStatusIdle})
		return nil, abandoned(nodeID)
	}

	if err := ctx.Err(); err != nil {
		s.sink.SetStatuses(context.WithoutCancel(ctx), map[string]schema.NodeStatus{nodeID: schema.NodeStatusIdle})
		return nil, schema.NewError(schema.ErrCodeCancelled, "node simulation was cancelled").
			WithNode(nodeID).WithCause(err)
	}

	// The node may have been edited or deleted during the delay.
	n, ok := s.sink.Graph().Node(nodeID)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeNotFound, "node was deleted during simulation").WithNode(nodeID)
	}

	v := s.checker.check(ctx, n)
	res := schema.SimulationResult{
		RunID:      runID,
		NodeID:     nodeID,
		Status:     v.status,
		Summary:    v.summary,
		Output:     v.output,
		FinishedAt: s.clock.Now(),
	}
	if v.status == schema.NodeStatusError {
		res.Error = v.summary
	}

	s.mu.Lock()
	if s.runToken != run {
		s.mu.Unlock()
		s.sink.SetStatuses(context.WithoutCancel(ctx), map[string]schema.NodeStatus{nodeID: schema.NodeStatusIdle})
		return nil, abandoned(nodeID)
	}
	s.results[nodeID] = res
	s.mu.Unlock()

	s.sink.SetStatuses(ctx, map[string]schema.NodeStatus{nodeID: v.status})
	s.publish(ctx, schema.EventNodeSimulated, nodeID, res)
	return &res, nil
}

func abandoned(nodeID string) *schema.Error {
	return schema.NewError(schema.ErrCodeCancelled, "simulation run was abandoned").WithNode(nodeID)
}

func (s *Simulator) persist(ctx context.Context, results []schema.SimulationResult) {
	if s.cfg.Results == nil || len(results) == 0 {
		return
	}
	if err := s.cfg.Results.AppendSimulationResults(ctx, s.cfg.WorkflowID, results); err != nil {
		logging.LogWith(ctx, s.logger).Error("persist simulation results failed", "error", err)
	}
}

func (s *Simulator) publish(ctx context.Context, eventType, nodeID string, payload any) {
	ev := streaming.StreamEvent{WorkflowID: s.cfg.WorkflowID, NodeID: nodeID, EventType: eventType, Payload: payload}
	if err := s.hub.Publish(ctx, ev); err != nil {
		s.logger.Debug("publish failed", "event", eventType, "error", err)
	}
}
