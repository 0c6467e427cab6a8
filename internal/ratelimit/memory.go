package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Sweep cadence and the idle age past which a key's bucket is dropped.
const (
	sweepEvery = time.Minute
	idleAfter  = 10 * time.Minute
)

// bucket tracks the spendable tokens for one key.
type bucket struct {
	tokens float64
	last   time.Time
}

// MemoryLimiter is a per-key token bucket held in process memory. Refill is
// computed lazily from the time since the key's last request, so there is
// no per-bucket timer; one sweeper goroutine drops idle keys to bound the
// map. Multi-instance deployments need a shared Limiter implementation,
// this one only sees its own process's traffic.
type MemoryLimiter struct {
	rate  float64 // tokens per second
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryLimiter builds a limiter that sustains rate requests per second
// per key and absorbs bursts of up to burst requests. Call Close to stop
// the sweeper goroutine.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow spends one token for key. A key's first request starts from a full
// bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, last: now}
		m.buckets[key] = b
	}
	b.tokens = math.Min(m.burst, b.tokens+now.Sub(b.last).Seconds()*m.rate)
	b.last = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			m.dropIdle(time.Now().Add(-idleAfter))
		}
	}
}

// dropIdle removes every bucket whose last request predates cutoff.
func (m *MemoryLimiter) dropIdle(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.last.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
