package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localCleanupEvery = 5 * time.Minute

// localLimiter is the degraded in-process limiter used while the store is unreachable.
// Its counts are per instance only.
type localLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	lastCleanup time.Time
}

func newLocalLimiter(p Policy, now time.Time) *localLimiter {
	return &localLimiter{
		limiters:    make(map[string]*rate.Limiter),
		rate:        rate.Limit(float64(p.Max) / p.Window.Seconds()),
		burst:       p.Max,
		lastCleanup: now,
	}
}

// allow reports whether key may proceed and, if not, how long until it may.
func (l *localLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanup(now)

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// maybeCleanup drops limiters whose bucket has refilled; they carry no state worth keeping.
func (l *localLimiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < localCleanupEvery {
		return
	}
	l.lastCleanup = now
	for k, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, k)
		}
	}
}
