// Package rate schedules iteration start times for arrival-rate executors.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket implements the leaky bucket algorithm for iteration pacing.
//
// The bucket answers "when should the next iteration start" rather than
// "how many tokens are left". Drips are anchored to a fixed schedule, so
// timer overshoot on one tick does not delay every later tick. When the
// caller falls behind, ticks are returned immediately until the schedule
// is caught up, bounded by maxBurst: a stall never turns into an
// unbounded burst.
//
// # Thread Safety
//
// LeakyBucket is safe for concurrent use from multiple goroutines.
//
// # Example
//
//	lb := NewLeakyBucket(1000, time.Second) // 1000 iterations per second
//
//	for {
//	    if err := lb.Wait(ctx); err != nil {
//	        return
//	    }
//	    // Start iteration
//	}
type LeakyBucket struct {
	interval time.Duration // Time between drips
	rate     float64       // Drips per timeUnit
	timeUnit time.Duration
	next     time.Time // Scheduled time of the next drip
	maxBurst float64   // Ticks that may fire back-to-back when behind
	now      func() time.Time
	mu       sync.Mutex

	totalIterations atomic.Int64 // Total drips handed out
	totalWaitTime   atomic.Int64 // Total scheduled wait in nanoseconds
}

// Option configures a LeakyBucket.
type Option func(*LeakyBucket)

// WithBurst allows up to burst ticks to fire immediately when the caller
// falls behind schedule. Values below 1 mean strict timing.
func WithBurst(burst float64) Option {
	return func(lb *LeakyBucket) {
		if burst < 1 {
			burst = 1
		}
		lb.maxBurst = burst
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(lb *LeakyBucket) {
		lb.now = now
	}
}

// NewLeakyBucket creates a bucket dripping rate times per timeUnit.
// Non-positive values default to one per second. The first drip is
// immediate.
func NewLeakyBucket(rate float64, timeUnit time.Duration, opts ...Option) *LeakyBucket {
	lb := &LeakyBucket{
		maxBurst: 1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(lb)
	}
	if rate <= 0 {
		rate = 1
	}
	if timeUnit <= 0 {
		timeUnit = time.Second
	}
	lb.rate = rate
	lb.timeUnit = timeUnit
	lb.interval = time.Duration(float64(timeUnit) / rate)
	if lb.interval <= 0 {
		lb.interval = 1
	}
	lb.next = lb.now()
	return lb
}

// Next reserves the next drip and returns when it should start. The
// returned time may be in the past when the caller is behind schedule,
// meaning the iteration should start immediately.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := lb.now()

	// Cap the backlog at maxBurst ticks.
	backlog := time.Duration((lb.maxBurst - 1) * float64(lb.interval))
	if earliest := now.Add(-backlog); lb.next.Before(earliest) {
		lb.next = earliest
	}

	at := lb.next
	lb.next = lb.next.Add(lb.interval)

	lb.totalIterations.Add(1)
	if wait := at.Sub(now); wait > 0 {
		lb.totalWaitTime.Add(int64(wait))
	}
	return at
}

// Wait blocks until the next drip is due.
//
// Returns nil when the drip is due, or ctx.Err() if the context was
// cancelled first.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats returns statistics about the leaky bucket's operation.
func (lb *LeakyBucket) Stats() LeakyBucketStats {
	lb.mu.Lock()
	rate, unit, burst := lb.rate, lb.timeUnit, lb.maxBurst
	lb.mu.Unlock()

	return LeakyBucketStats{
		Rate:            rate,
		TimeUnit:        unit,
		MaxBurst:        burst,
		TotalIterations: lb.totalIterations.Load(),
		TotalWaitTime:   time.Duration(lb.totalWaitTime.Load()),
	}
}

// LeakyBucketStats contains statistics about the leaky bucket.
type LeakyBucketStats struct {
	Rate            float64       `json:"rate"`
	TimeUnit        time.Duration `json:"timeUnit"`
	MaxBurst        float64       `json:"maxBurst"`
	TotalIterations int64         `json:"totalIterations"`
	TotalWaitTime   time.Duration `json:"totalWaitTime"`
}
