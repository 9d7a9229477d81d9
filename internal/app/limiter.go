package app

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"golang.org/x/time/rate"
)

// ActionLimiter throttles session actions per client.
type ActionLimiter struct {
	mu       sync.Mutex
	limiters map[core.SessionID]*limiterEntry
	limit    rate.Limit
	burst    int
	idle     time.Duration

	lastCleanup time.Time
	now         func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewActionLimiter allows limit actions per interval with the given burst per client.
func NewActionLimiter(limit int, interval time.Duration, burst int) *ActionLimiter {
	if burst <= 0 {
		burst = limit
	}
	return &ActionLimiter{
		limiters:    make(map[core.SessionID]*limiterEntry),
		limit:       rate.Limit(float64(limit) / interval.Seconds()),
		burst:       burst,
		idle:        10 * interval,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *ActionLimiter) Allow(sid core.SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[sid]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[sid] = e
	}
	e.seen = now
	allowed := e.lim.AllowN(now, 1)
	l.cleanupLocked(now)
	return allowed
}

// cleanupLocked forgets clients idle for longer than l.idle.
func (l *ActionLimiter) cleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.idle {
		return
	}
	for sid, e := range l.limiters {
		if now.Sub(e.seen) > l.idle {
			delete(l.limiters, sid)
		}
	}
	l.lastCleanup = now
}

func (l *ActionLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
