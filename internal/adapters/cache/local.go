package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalRateLimiter is the single-process fallback when no Redis is
// configured. Each key gets a token bucket refilling limit tokens per window.
type LocalRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	idleTTL time.Duration
	sweeps  int
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{buckets: map[string]*localBucket{}, idleTTL: 10 * time.Minute}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweeps++
	if l.sweeps%1024 == 0 {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		b = &localBucket{limiter: rate.NewLimiter(every, limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}
