package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces operations that share a key, typically a host, while letting
// different keys proceed independently. Jitter randomises each gap by up to
// +/- jitter * interval. It is safe for concurrent use.
type Limiter struct {
	interval time.Duration
	jitter   float64

	mu   sync.Mutex
	next map[string]time.Time
}

// NewLimiter creates a limiter allowing rps operations per second per key.
// Jitter is clamped to [0, 1]. If rps <= 0 the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	l := &Limiter{jitter: jitter, next: make(map[string]time.Time)}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// Wait blocks until key's next slot or until ctx is done. A nil Limiter never blocks.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil || l.interval == 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next[key]
	if slot.Before(now) {
		slot = now
	}
	l.next[key] = slot.Add(l.gap())
	l.mu.Unlock()

	d := slot.Sub(now)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) gap() time.Duration {
	if l.jitter == 0 {
		return l.interval
	}
	factor := rand.Float64()*2 - 1 // -1.0 to 1.0
	return l.interval + time.Duration(float64(l.interval)*l.jitter*factor)
}
