// Package ratelimit throttles per-user message sends with a token
// bucket, so one connection flooding the hub can't starve everyone
// else's fan-out.
package ratelimit

import (
	"sync"
	"time"

	"github.com/emberchat/ember/internal/id"
	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per user, lazily created on first
// use. Buckets stay in memory until Sweep evicts idle ones.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[id.UserID]*bucket
	burst    int
	interval time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter allowing burst messages per interval per user.
func New(burst int, interval time.Duration) *Limiter {
	return &Limiter{
		buckets:  make(map[id.UserID]*bucket),
		burst:    burst,
		interval: interval,
	}
}

// Allow reports whether userID may send a message right now,
// consuming a token if so.
func (l *Limiter) Allow(userID id.UserID) bool {
	l.mu.Lock()
	b, ok := l.buckets[userID]
	if !ok {
		ratePerSec := rate.Limit(float64(l.burst) / l.interval.Seconds())
		b = &bucket{limiter: rate.NewLimiter(ratePerSec, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Sweep evicts buckets that have been idle for longer than maxIdle,
// bounding memory growth from users who connect once and vanish.
func (l *Limiter) Sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for uid, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, uid)
		}
	}
}
