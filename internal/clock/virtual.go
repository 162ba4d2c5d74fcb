package clock

import (
	"sync"
	"time"
)

type virtualTimer struct {
	at  time.Time
	seq uint64
	fn  func()
}

// Virtual is a manually advanced Scheduler for tests. Callbacks run on the
// goroutine calling Advance.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	next   Token
	seq    uint64
	timers map[Token]*virtualTimer
}

// NewVirtual creates a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{
		now:    start,
		timers: make(map[Token]*virtualTimer),
	}
}

// Schedule implements Scheduler.
func (v *Virtual) Schedule(d time.Duration, fn func()) Token {
	v.mu.Lock()
	defer v.mu.Unlock()

	if d < 0 {
		d = 0
	}
	v.next++
	v.seq++
	v.timers[v.next] = &virtualTimer{at: v.now.Add(d), seq: v.seq, fn: fn}
	return v.next
}

// Cancel implements Scheduler.
func (v *Virtual) Cancel(t Token) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.timers, t)
}

// Now implements Scheduler.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Pending returns the number of armed timers.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// Advance moves time forward by d, firing every callback whose deadline
// falls inside the window in deadline order. Callbacks scheduled by a
// firing callback are eligible in the same call.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		tok, due := v.earliest(target)
		if due == nil {
			v.now = target
			v.mu.Unlock()
			return
		}
		delete(v.timers, tok)
		if due.at.After(v.now) {
			v.now = due.at
		}
		v.mu.Unlock()

		due.fn()
	}
}

// earliest returns the first timer due at or before target. Callers hold v.mu.
func (v *Virtual) earliest(target time.Time) (Token, *virtualTimer) {
	var (
		bestTok Token
		best    *virtualTimer
	)
	for tok, t := range v.timers {
		if t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			bestTok, best = tok, t
		}
	}
	return bestTok, best
}

var _ Scheduler = (*Virtual)(nil)
