package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucketStore stores time-bucketed metrics in a ring buffer.
//
// Interval deltas are accumulated lock-free and swapped out when the
// emitter closes a bucket. Once the buffer is full the oldest buckets are
// overwritten.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int // Next write position
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	currentRequests   atomic.Int64
	currentFailures   atomic.Int64
	currentIterations atomic.Int64
	currentDropped    atomic.Int64
	currentFailClosed atomic.Int64
}

// NewTimeBucketStore creates a store retaining at most maxBuckets buckets.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds one request to the current interval.
func (tbs *TimeBucketStore) RecordRequest(outcome Outcome, failClosed bool) {
	tbs.currentRequests.Add(1)
	if outcome == OutcomeFailed {
		tbs.currentFailures.Add(1)
	}
	if failClosed {
		tbs.currentFailClosed.Add(1)
	}
}

// RecordIteration adds one completed iteration to the current interval.
func (tbs *TimeBucketStore) RecordIteration() {
	tbs.currentIterations.Add(1)
}

// RecordDropped adds one dropped iteration to the current interval.
func (tbs *TimeBucketStore) RecordDropped() {
	tbs.currentDropped.Add(1)
}

// bucketTotals are the cumulative values copied into a bucket.
type bucketTotals struct {
	requests, failures, bytes, dropped, iterations int64
}

// CreateBucket closes the current interval and appends a bucket.
func (tbs *TimeBucketStore) CreateBucket(totals bucketTotals, latencies LatencyPercentiles, activeVUs int, phase Phase) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	intervalRequests := tbs.currentRequests.Swap(0)
	intervalFailures := tbs.currentFailures.Swap(0)

	intervalDuration := now.Sub(tbs.lastBucketTime).Seconds()
	if intervalDuration <= 0 {
		intervalDuration = 1.0
	}

	intervalErrorRate := 0.0
	if intervalRequests > 0 {
		intervalErrorRate = float64(intervalFailures) / float64(intervalRequests)
	}

	bucket := &TimeBucket{
		Timestamp:          now,
		TotalRequests:      totals.requests,
		TotalFailures:      totals.failures,
		TotalBytes:         totals.bytes,
		TotalDropped:       totals.dropped,
		TotalIterations:    totals.iterations,
		IntervalRequests:   intervalRequests,
		IntervalRPS:        float64(intervalRequests) / intervalDuration,
		IntervalIterations: tbs.currentIterations.Swap(0),
		IntervalDropped:    tbs.currentDropped.Swap(0),
		IntervalFailClosed: tbs.currentFailClosed.Swap(0),
		IntervalErrorRate:  intervalErrorRate,
		LatencyP50:         latencies.P50,
		LatencyP95:         latencies.P95,
		LatencyP99:         latencies.P99,
		ActiveVUs:          activeVUs,
		Phase:              phase,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns all buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	if tbs.count < tbs.maxBuckets {
		copy(result, tbs.buckets[:tbs.count])
	} else {
		for i := 0; i < tbs.count; i++ {
			result[i] = tbs.buckets[(tbs.head+i)%tbs.maxBuckets]
		}
	}
	return result
}

// GetBucketsForPhase returns buckets recorded during phase.
func (tbs *TimeBucketStore) GetBucketsForPhase(phase Phase) []*TimeBucket {
	var result []*TimeBucket
	for _, b := range tbs.GetBuckets() {
		if b.Phase == phase {
			result = append(result, b)
		}
	}
	return result
}

// CalculateSteadyStateRPS averages the request rate over steady-state
// buckets. It returns the rate and the number of buckets used.
func (tbs *TimeBucketStore) CalculateSteadyStateRPS() (float64, int) {
	steady := tbs.GetBucketsForPhase(PhaseSteady)
	if len(steady) == 0 {
		return 0, 0
	}

	var sum float64
	for _, b := range steady {
		sum += b.IntervalRPS
	}
	return sum / float64(len(steady)), len(steady)
}
