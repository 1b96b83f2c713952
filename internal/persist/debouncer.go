package persist

import (
	"sync"
	"time"

	"github.com/rendis/canvasflow/internal/clock"
)

// Debouncer runs at most one pending callback per key. Scheduling a key
// again cancels its pending callback and restarts the delay.
type Debouncer struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[string]*pendingCall
	gen     uint64
	stopped bool
}

type pendingCall struct {
	timer clock.Timer
	gen   uint64
}

// NewDebouncer creates a Debouncer driven by c.
func NewDebouncer(c clock.Clock) *Debouncer {
	return &Debouncer{
		clock:   c,
		pending: make(map[string]*pendingCall),
	}
}

// Schedule runs fn after delay unless key is scheduled again or cancelled
// first. fn runs on the clock's timer goroutine without any lock held.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}

	d.gen++
	gen := d.gen
	call := &pendingCall{gen: gen}
	d.pending[key] = call
	call.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		current, ok := d.pending[key]
		if !ok || current.gen != gen {
			// Superseded between firing and acquiring the lock.
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether a callback is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending callback and ignores later Schedule calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.stopped = true
}
