package rest

import (
	"context"
	"sync"
	"time"
)

const (
	defaultWindow        = time.Minute
	defaultSweepInterval = 10 * time.Second
)

// Limiter enforces a maximum number of requests within a trailing time
// window. Admission never drops a request; callers wait until the window has
// room. The timestamp slice is guarded by its own lock, independent of any
// streaming state, so REST traffic and streaming traffic never contend.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewLimiter creates a limiter admitting at most maxPerWindow requests per
// trailing window. A zero window defaults to one minute.
func NewLimiter(maxPerWindow int, window time.Duration) *Limiter {
	if maxPerWindow <= 0 {
		maxPerWindow = 200
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{
		max:    maxPerWindow,
		window: window,
		stamps: make([]time.Time, 0, maxPerWindow),
		now:    time.Now,
	}
}

// Acquire blocks until issuing one more request would not exceed the
// configured maximum within the trailing window, records the new request
// timestamp and returns. When the window is full the caller is suspended for
// exactly the time until the oldest retained timestamp leaves the window.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evictLocked(now)
		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// StartSweep evicts stale timestamps on a fixed cadence so memory stays
// bounded while the client is idle. Eviction also happens opportunistically
// inside Acquire.
func (l *Limiter) StartSweep(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.mu.Lock()
				l.evictLocked(l.now())
				l.mu.Unlock()
			}
		}
	}()
}

// Pending returns the number of timestamps currently retained in the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stamps)
}

func (l *Limiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
