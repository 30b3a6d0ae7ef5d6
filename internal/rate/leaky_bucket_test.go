package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func TestNewLeakyBucket_Interval(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		unit     time.Duration
		expected time.Duration
	}{
		{"per second", 1000, time.Second, time.Millisecond},
		{"per minute", 60, time.Minute, time.Second},
		{"zero rate defaults to 1/s", 0, time.Second, time.Second},
		{"zero unit defaults to 1s", 4, 0, 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := NewLeakyBucket(tt.rate, tt.unit, WithClock(newClock().Now))
			first, second := lb.Next(), lb.Next()
			if got := second.Sub(first); got != tt.expected {
				t.Errorf("drip interval = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLeakyBucket_Next_Schedule(t *testing.T) {
	clock := newClock()
	start := clock.Now()
	lb := NewLeakyBucket(100, time.Second, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		want := start.Add(time.Duration(i) * 10 * time.Millisecond)
		if got := lb.Next(); !got.Equal(want) {
			t.Errorf("Next() #%d = %v, want %v", i, got.Sub(start), want.Sub(start))
		}
	}
}

func TestLeakyBucket_Next_AnchoredSchedule(t *testing.T) {
	clock := newClock()
	start := clock.Now()
	lb := NewLeakyBucket(100, time.Second, WithClock(clock.Now), WithBurst(10))

	_ = lb.Next() // t=0
	// Caller wakes 3ms late for the second tick; the third is still at 20ms.
	clock.Advance(13 * time.Millisecond)
	if got := lb.Next(); got.Sub(start) != 10*time.Millisecond {
		t.Errorf("second tick at %v, want 10ms", got.Sub(start))
	}
	if got := lb.Next(); got.Sub(start) != 20*time.Millisecond {
		t.Errorf("third tick at %v, want 20ms", got.Sub(start))
	}
}

func TestLeakyBucket_Next_BurstCap(t *testing.T) {
	clock := newClock()
	lb := NewLeakyBucket(100, time.Second, WithClock(clock.Now), WithBurst(3))
	_ = lb.Next()

	// A one second stall leaves 100 ticks overdue; only 3 fire at once.
	clock.Advance(time.Second)
	now := clock.Now()
	immediate := 0
	for i := 0; i < 10; i++ {
		if !lb.Next().After(now) {
			immediate++
		}
	}
	if immediate != 3 {
		t.Errorf("immediate ticks after stall = %d, want 3", immediate)
	}
}

func TestLeakyBucket_Next_StrictTiming(t *testing.T) {
	clock := newClock()
	lb := NewLeakyBucket(10, time.Second, WithClock(clock.Now))
	_ = lb.Next()

	clock.Advance(time.Second)
	now := clock.Now()
	if got := lb.Next(); !got.Equal(now) {
		t.Errorf("first tick after stall = %v, want now", got.Sub(now))
	}
	if got := lb.Next(); got.Sub(now) != 100*time.Millisecond {
		t.Errorf("second tick after stall = %v, want +100ms", got.Sub(now))
	}
}

func TestLeakyBucket_Stats(t *testing.T) {
	clock := newClock()
	lb := NewLeakyBucket(10, time.Second, WithClock(clock.Now), WithBurst(4))
	for i := 0; i < 3; i++ {
		lb.Next()
	}

	stats := lb.Stats()
	if stats.Rate != 10 || stats.TimeUnit != time.Second || stats.MaxBurst != 4 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.TotalIterations != 3 {
		t.Errorf("TotalIterations = %d, want 3", stats.TotalIterations)
	}
	// Drips at 0, 100ms and 200ms with the clock frozen at 0.
	if stats.TotalWaitTime != 300*time.Millisecond {
		t.Errorf("TotalWaitTime = %v, want 300ms", stats.TotalWaitTime)
	}
}

func TestLeakyBucket_Wait_RespectsContext(t *testing.T) {
	lb := NewLeakyBucket(1, time.Second)
	_ = lb.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lb.Wait(ctx)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("Wait() took %v, should return promptly on cancel", elapsed)
	}
}

func TestLeakyBucket_Wait_Rate(t *testing.T) {
	lb := NewLeakyBucket(200, time.Second, WithBurst(10))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 40; i++ {
		if err := lb.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// 40 drips at 5ms intervals: the last is due at 195ms.
	if elapsed < 180*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Errorf("40 waits took %v, want ~195ms", elapsed)
	}
	if got := lb.Stats().TotalIterations; got != 40 {
		t.Errorf("TotalIterations = %d, want 40", got)
	}
}

func TestLeakyBucket_Concurrent(t *testing.T) {
	clock := newClock()
	lb := NewLeakyBucket(1000, time.Second, WithClock(clock.Now))

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				at := lb.Next()
				mu.Lock()
				seen[at] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1000 {
		t.Errorf("distinct drip times = %d, want 1000", len(seen))
	}
}
