// Package ratelimit provides per-session token-bucket rate limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

// pruneAfter is how long a session's bucket survives without traffic.
const pruneAfter = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per (session, operation) pair. Idle
// buckets are pruned so abandoned sessions do not accumulate.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	enabled bool
	limit   rate.Limit
	burst   int

	stop chan struct{}
	once sync.Once
}

// New creates a limiter from config. When disabled, Allow always
// returns true.
func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		enabled: cfg.Enabled,
		stop:    make(chan struct{}),
	}
	if cfg.Enabled {
		window := cfg.Window.Duration()
		if window <= 0 {
			window = time.Minute
		}
		l.limit = rate.Limit(float64(cfg.Requests) / window.Seconds())
		l.burst = cfg.Requests
		go l.prune()
	}
	return l
}

// Allow reports whether the session may perform the operation now.
func (l *Limiter) Allow(sessionID, operation string) bool {
	if !l.enabled {
		return true
	}

	key := sessionID + ":" + operation

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// Close stops the background pruner.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) prune() {
	ticker := time.NewTicker(pruneAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-pruneAfter)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
