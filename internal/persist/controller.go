// Package persist implements the two-speed save policy: structural edits
// are saved immediately, field edits after a debounce window.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Persister is the persistence API: it stores a full {nodes, edges} snapshot.
type Persister interface {
	Save(ctx context.Context, workflowID string, snap schema.Snapshot) (*schema.SavedRecord, error)
}

// Defaults for ControllerConfig.
const (
	DefaultDebounce    = 800 * time.Millisecond
	DefaultSaveTimeout = 10 * time.Second
)

const debounceKey = "save"

// State is the save state of the graph.
type State int

const (
	StateClean State = iota
	StateDirtyDebounced
	StateDirtyImmediate
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirtyDebounced:
		return "dirty-debounced"
	case StateDirtyImmediate:
		return "dirty-immediate"
	}
	return "unknown"
}

// ControllerConfig holds the tunables for a Controller.
type ControllerConfig struct {
	WorkflowID  string
	Debounce    time.Duration
	SaveTimeout time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
	Hub         streaming.EventHub
}

// Controller issues saves to a Persister. Save calls run on their own
// goroutines and are not serialized: each carries the full snapshot, so
// the last successful write wins. Failures are logged and not retried;
// the next request is the retry.
type Controller struct {
	cfg       ControllerConfig
	persister Persister
	source    func() schema.Snapshot
	debouncer *Debouncer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	seq     uint64
	last    *schema.SavedRecord
	lastErr error
	closed  bool
}

// NewController creates a Controller. source returns the snapshot to save
// when a debounced save fires; it must not call back into the Controller.
func NewController(p Persister, source func() schema.Snapshot, cfg ControllerConfig) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSaveTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = streaming.Discard{}
	}

	ctx, cancel := context.WithCancel(logging.WithWorkflowID(context.Background(), cfg.WorkflowID))
	return &Controller{
		cfg:       cfg,
		persister: p,
		source:    source,
		debouncer: NewDebouncer(cfg.Clock),
		logger:    cfg.Logger.With(slog.String("component", "persist")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RequestImmediate saves snap now and drops any pending debounced save,
// since snap already contains those edits.
func (c *Controller) RequestImmediate(snap schema.Snapshot) {
	c.debouncer.Cancel(debounceKey)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	c.state = StateDirtyImmediate
	c.wg.Add(1)
	c.mu.Unlock()

	c.publish(schema.EventSaveRequested, map[string]any{"mode": "immediate"})
	c.save(snap, seq)
}

// RequestDebounced (re)starts the debounce window. The snapshot is read
// from the source when the window closes.
func (c *Controller) RequestDebounced() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	c.state = StateDirtyDebounced
	c.mu.Unlock()

	c.debouncer.Schedule(debounceKey, c.cfg.Debounce, c.fire)
}

// Flush saves a pending debounced edit now. It reports whether one was pending.
func (c *Controller) Flush() bool {
	if !c.debouncer.Cancel(debounceKey) {
		return false
	}
	c.fire()
	return true
}

// Wait blocks until every in-flight save has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close flushes a pending debounced save, waits for in-flight saves and
// rejects later requests.
func (c *Controller) Close() {
	c.Flush()
	c.debouncer.Stop()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	c.cancel()
}

// State returns the current save state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSaved returns the record of the most recent successful save, if any.
func (c *Controller) LastSaved() *schema.SavedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LastError returns the error of the most recent failed save, cleared by
// the next success.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// fire runs when the debounce window closes.
func (c *Controller) fire() {
	snap := c.source()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	seq := c.seq
	c.state = StateDirtyImmediate
	c.wg.Add(1)
	c.mu.Unlock()

	c.publish(schema.EventSaveRequested, map[string]any{"mode": "debounced"})
	c.save(snap, seq)
}

// save runs the Persister call. The caller has already done wg.Add(1)
// under c.mu so Close cannot miss it.
func (c *Controller) save(snap schema.Snapshot, seq uint64) {
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SaveTimeout)
		defer cancel()

		start := c.cfg.Clock.Now()
		rec, err := c.persister.Save(ctx, c.cfg.WorkflowID, snap)

		if err == nil && rec == nil {
			rec = &schema.SavedRecord{WorkflowID: c.cfg.WorkflowID, SavedAt: c.cfg.Clock.Now()}
		}

		c.mu.Lock()
		if err != nil {
			// State stays dirty; the next request saves again.
			c.lastErr = err
		} else {
			c.lastErr = nil
			if c.last == nil || rec.Version >= c.last.Version {
				c.last = rec
			}
			if seq == c.seq {
				c.state = StateClean
			}
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.ErrorContext(ctx, "save failed",
				slog.Int("nodes", len(snap.Nodes)),
				slog.Int("edges", len(snap.Edges)),
				slog.String("error", err.Error()),
			)
			c.publish(schema.EventSaveFailed, map[string]any{"error": err.Error()})
			return
		}
		c.logger.DebugContext(ctx, "saved",
			slog.Int64("version", rec.Version),
			slog.Duration("took", c.cfg.Clock.Now().Sub(start)),
		)
		c.publish(schema.EventSaveCompleted, rec)
	}()
}

func (c *Controller) publish(eventType string, payload any) {
	_ = c.cfg.Hub.Publish(c.ctx, streaming.StreamEvent{
		WorkflowID: c.cfg.WorkflowID,
		EventType:  eventType,
		Payload:    payload,
	})
}
