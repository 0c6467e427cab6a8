package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newClosedOnCleanup(t *testing.T, rate float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return m
}

// allowN spends n requests for key and returns how many were allowed.
func allowN(t *testing.T, m *MemoryLimiter, key string, n int) int {
	t.Helper()
	allowed := 0
	for i := 0; i < n; i++ {
		ok, err := m.Allow(context.Background(), key)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if ok {
			allowed++
		}
	}
	return allowed
}

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m := newClosedOnCleanup(t, 10, 3)

	if got := allowN(t, m, "k", 3); got != 3 {
		t.Fatalf("burst of 3 should all pass, allowed %d", got)
	}
	if ok, _ := m.Allow(context.Background(), "k"); ok {
		t.Fatal("request past the burst must be denied")
	}
}

func TestMemoryLimiterRefills(t *testing.T) {
	// 1000 tokens per second refills a burst-1 bucket in about a
	// millisecond.
	m := newClosedOnCleanup(t, 1000, 1)

	allowN(t, m, "k", 1)
	if ok, _ := m.Allow(context.Background(), "k"); ok {
		t.Fatal("bucket should be empty right after the burst")
	}

	time.Sleep(5 * time.Millisecond)
	if ok, _ := m.Allow(context.Background(), "k"); !ok {
		t.Fatal("bucket should have refilled")
	}
}

func TestMemoryLimiterKeysAreIsolated(t *testing.T) {
	m := newClosedOnCleanup(t, 10, 1)

	allowN(t, m, "a", 1)
	if ok, _ := m.Allow(context.Background(), "a"); ok {
		t.Fatal("key a should be exhausted")
	}
	if ok, _ := m.Allow(context.Background(), "b"); !ok {
		t.Fatal("key b must not be affected by key a's spend")
	}
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	m := newClosedOnCleanup(t, 1000, 2)

	allowN(t, m, "k", 1)
	m.mu.Lock()
	m.buckets["k"].last = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	// An hour of refill still tops out at the burst of 2.
	if got := allowN(t, m, "k", 3); got != 2 {
		t.Fatalf("expected exactly 2 allowed after long idle, got %d", got)
	}
}

func TestMemoryLimiterDropIdle(t *testing.T) {
	m := newClosedOnCleanup(t, 10, 5)

	allowN(t, m, "stale", 1)
	allowN(t, m, "fresh", 1)
	m.mu.Lock()
	m.buckets["stale"].last = time.Now().Add(-idleAfter - time.Minute)
	m.mu.Unlock()

	m.dropIdle(time.Now().Add(-idleAfter))

	m.mu.Lock()
	_, staleKept := m.buckets["stale"]
	_, freshKept := m.buckets["fresh"]
	m.mu.Unlock()
	if staleKept {
		t.Fatal("idle bucket should be dropped")
	}
	if !freshKept {
		t.Fatal("active bucket must survive the sweep")
	}
}

func TestMemoryLimiterConcurrentSpend(t *testing.T) {
	m := newClosedOnCleanup(t, 1, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(context.Background(), "shared")
				if err != nil {
					t.Errorf("Allow: %v", err)
					return
				}
				if ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 50 racing requests against a burst of 10 and negligible refill.
	if allowed < 1 || allowed > 10 {
		t.Fatalf("expected between 1 and 10 allowed, got %d", allowed)
	}
}

func TestMemoryLimiterBurstClampedToOne(t *testing.T) {
	m := newClosedOnCleanup(t, 10, 0)
	if ok, _ := m.Allow(context.Background(), "k"); !ok {
		t.Fatal("a zero burst is clamped to 1, the first request must pass")
	}
}

func TestMemoryLimiterCloseTwice(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "anything")
		if err != nil || !ok {
			t.Fatalf("NoopLimiter must always allow, got ok=%v err=%v", ok, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
