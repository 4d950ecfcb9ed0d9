// Package debounce delays propagation of rapidly changing values until a quiet period passes.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds the latest pending value and calls fn with it once no new value
// has arrived for the quiet period. Flush propagates immediately; Stop drops anything pending.
type Debouncer[T any] struct {
	mu      sync.Mutex
	quiet   time.Duration
	fn      func(T)
	timer   *time.Timer
	pending bool
	value   T
	gen     uint64
	stopped bool
}

func New[T any](quiet time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{quiet: quiet, fn: fn}
}

// Push records v as the latest value and restarts the quiet period.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.value = v
	d.pending = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.quiet <= 0 {
		d.timer = nil
		go d.fire(gen)
		return
	}
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

// Flush propagates the pending value now, on the caller's goroutine.
// It reports whether a value was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	v := d.value
	d.pending = false
	d.gen++
	d.mu.Unlock()
	d.fn(v)
	return true
}

// Pending returns the value waiting to be propagated, if any.
func (d *Debouncer[T]) Pending() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.pending
}

// Stop cancels any pending propagation. Later pushes are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
