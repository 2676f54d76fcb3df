// Package debounce provides a trailing debouncer with forced flush.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into at most one call per interval.
// The first trigger schedules the call; triggers arriving while it is pending
// are folded into it.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

// New creates a debouncer that runs fn at most once per interval
func New(interval time.Duration, fn func()) *Debouncer {
	return &Debouncer{interval: interval, fn: fn}
}

// Trigger schedules fn unless a call is already pending
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.timer != nil {
		return
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.interval, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.timer == nil || d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Pending reports whether a call is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops a pending call without running it
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush cancels any pending call and runs fn immediately
func (d *Debouncer) Flush() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()

	d.fn()
}

// Stop flushes once and refuses further triggers
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cancelLocked()
	d.mu.Unlock()

	d.fn()
}
