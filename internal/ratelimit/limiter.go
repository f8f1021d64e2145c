// Package ratelimit implements a keyed token bucket used in front of the
// inspection gate, so abusive clients are answered before any engine work.
package ratelimit

import (
	"sync"
	"time"
)

type KeyType string

const (
	KeyIP     KeyType = "ip"
	KeyIPPath KeyType = "ip_path"
)

type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
	burst  float64
	rate   float64
}

func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether a request under key may proceed. Buckets refill at
// rps tokens per second up to burst. A zero key or non-positive limits
// disable limiting for the call.
func (l *Limiter) Allow(key string, rps float64, burst int, now time.Time) bool {
	if key == "" || rps <= 0 || burst <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(burst), last: now, burst: float64(burst), rate: rps}
		l.buckets[key] = b
	}

	if b.rate != rps || b.burst != float64(burst) {
		b.rate = rps
		b.burst = float64(burst)
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
