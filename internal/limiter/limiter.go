// Package limiter enforces a process-wide minimum interval between upstream
// provider calls.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces out calls so that no two acquisitions complete less than
// 60s/requestsPerMinute apart. A single shared instance gates every upstream
// call site: the background syncer and any synchronous fetch path.
//
// Acquire reserves the next free slot under a mutex and then sleeps outside
// it, so concurrent callers serialize in lock-acquisition order without
// blocking each other on the wait itself.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time

	now func() time.Time
}

// New builds a Limiter for the given request budget. A non-positive budget
// disables spacing entirely.
func New(requestsPerMinute int) *Limiter {
	var interval time.Duration
	if requestsPerMinute > 0 {
		interval = time.Minute / time.Duration(requestsPerMinute)
	}
	return &Limiter{interval: interval, now: time.Now}
}

// Interval reports the enforced spacing between acquisitions.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until the caller's reserved slot arrives or the context is
// cancelled. On cancellation the reservation is not released; the budget
// model is a floor on spacing, not an exact token count.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := l.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
