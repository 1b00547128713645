package controller

import (
	"sync"
	"time"
)

// debouncer coalesces rapid repeated triggers into one invocation at the
// end of the window. A window of zero invokes synchronously, which keeps
// tests deterministic.
type debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timer   *time.Timer
	pending func()
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window}
}

func (d *debouncer) Trigger(fn func()) {
	if d.window <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = fn
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
	}
}

func (d *debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
