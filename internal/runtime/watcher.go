package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/canvasflow/internal/clock"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Applier receives every polled status. *editor.Editor satisfies it.
type Applier interface {
	ApplyRuntimeStatus(ctx context.Context, rs schema.RuntimeStatus)
}

// Defaults for WatcherConfig.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxFailures = 5
)

// WatcherConfig tunes a Watcher.
type WatcherConfig struct {
	Interval    time.Duration
	MaxFailures int // consecutive poll errors tolerated before giving up
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Watcher polls a StatusSource until the execution reaches a terminal
// status and hands every result to an Applier as a status-only update.
type Watcher struct {
	source  StatusSource
	applier Applier
	cfg     WatcherConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   schema.RuntimeStatus
	err    error
}

// NewWatcher creates a Watcher.
func NewWatcher(source StatusSource, applier Applier, cfg WatcherConfig) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Watcher{source: source, applier: applier, cfg: cfg}
}

// Watch polls immediately and then every interval, returning the terminal
// status. It fails after MaxFailures consecutive poll errors or when ctx ends.
func (w *Watcher) Watch(ctx context.Context, executionID string) (schema.RuntimeStatus, error) {
	log := logging.LogWith(ctx, w.cfg.Logger).With(slog.String("execution_id", executionID))
	failures := 0

	for {
		rs, err := w.source.Poll(ctx, executionID)
		switch {
		case err != nil && ctx.Err() != nil:
			return w.last, ctx.Err()
		case err != nil:
			failures++
			log.Warn("runtime status poll failed", slog.Int("failures", failures), slog.String("error", err.Error()))
			if failures >= w.cfg.MaxFailures || schema.HasCode(err, schema.ErrCodeNotFound) {
				return w.last, fmt.Errorf("watch execution %s: %w", executionID, err)
			}
		default:
			failures = 0
			w.mu.Lock()
			w.last = rs
			w.mu.Unlock()

			w.applier.ApplyRuntimeStatus(ctx, rs)
			log.Debug("runtime status", slog.String("status", rs.RuntimeStatus), slog.String("node_id", rs.CurrentNodeID))
			if rs.Terminal() {
				log.Info("execution finished", slog.String("status", rs.RuntimeStatus))
				return rs, nil
			}
		}

		select {
		case <-ctx.Done():
			return w.last, ctx.Err()
		case <-w.cfg.Clock.After(w.cfg.Interval):
		}
	}
}

// Start runs Watch in the background. Only one watch may run at a time.
func (w *Watcher) Start(ctx context.Context, executionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		select {
		case <-w.done:
		default:
			return errors.New("watcher already started")
		}
	}

	if w.cancel != nil {
		w.cancel()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.err = nil
	done := w.done

	go func() {
		defer close(done)
		defer cancel()
		_, err := w.Watch(watchCtx, executionID)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
	return nil
}

// Stop cancels a background watch and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the background watch ends. Nil before Start.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Last returns the latest polled status and the error that ended the
// background watch, if any.
func (w *Watcher) Last() (schema.RuntimeStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.err
}
