// Package clock provides cancelable timer scheduling with real and virtual time.
package clock

import (
	"sync"
	"time"
)

// Token identifies a scheduled callback. The zero Token is never issued.
type Token uint64

// Scheduler arms one-shot callbacks and cancels them by token.
type Scheduler interface {
	// Schedule runs fn once after d has elapsed.
	Schedule(d time.Duration, fn func()) Token
	// Cancel prevents a pending callback from running. Unknown, fired, or
	// already cancelled tokens are ignored.
	Cancel(t Token)
	// Now returns the scheduler's current time.
	Now() time.Time
}

// Real schedules callbacks on wall-clock time using time.AfterFunc.
type Real struct {
	mu     sync.Mutex
	next   Token
	timers map[Token]*time.Timer
}

// NewReal creates a wall-clock scheduler.
func NewReal() *Real {
	return &Real{timers: make(map[Token]*time.Timer)}
}

// Schedule implements Scheduler.
func (r *Real) Schedule(d time.Duration, fn func()) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	tok := r.next
	// The callback takes r.mu, so it cannot observe the map before the
	// timer is registered even when d is zero.
	r.timers[tok] = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, armed := r.timers[tok]
		delete(r.timers, tok)
		r.mu.Unlock()
		if armed {
			fn()
		}
	})
	return tok
}

// Cancel implements Scheduler.
func (r *Real) Cancel(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.timers[t]; ok {
		timer.Stop()
		delete(r.timers, t)
	}
}

// Now implements Scheduler.
func (r *Real) Now() time.Time {
	return time.Now()
}

// Pending returns the number of armed timers.
func (r *Real) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels every armed timer.
func (r *Real) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, timer := range r.timers {
		timer.Stop()
		delete(r.timers, tok)
	}
}

var _ Scheduler = (*Real)(nil)
