// Package metrics aggregates request, check and iteration metrics for a run.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sample is one completed request as seen by a VU.
type Sample struct {
	// Operation names the per-operation latency breakdown. Empty skips it.
	Operation  string
	StatusCode int
	Latency    time.Duration
	Bytes      int64
	Err        error
}

// Observer receives every recorded event. It lets an exporter mirror the
// engine without the engine knowing about it. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveRequest(operation string, status int, outcome Outcome, latency time.Duration)
	ObserveCheck(name string, passed bool)
	ObserveIteration()
	ObserveDroppedIteration()
	ObserveActiveVUs(n int)
	ObservePhase(phase Phase)
}

// Engine collects and aggregates run metrics using HDR histograms.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms and per-name tallies use mutex protection, and the background
// emitter runs in its own goroutine. After Stop the engine is frozen:
// further records are ignored and Snapshot returns the final view.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requestHists   map[string]*hdrhistogram.Histogram
	requestHistsMu sync.Mutex

	checks   map[string]*CheckStats
	statuses map[int]int64
	tallyMu  sync.Mutex

	totalRequests     atomic.Int64
	successRequests   atomic.Int64
	failedRequests    atomic.Int64
	excludedRequests  atomic.Int64
	failClosed        atomic.Int64
	totalBytes        atomic.Int64
	iterations        atomic.Int64
	droppedIterations atomic.Int64
	checksPassed      atomic.Int64
	checksFailed      atomic.Int64

	activeVUs    atomic.Int32
	maxActiveVUs atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup

	stopOnce sync.Once
	stopped  atomic.Bool
	final    *Snapshot

	observer Observer
	config   EngineConfig
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver mirrors every recorded event to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig(), opts...)
}

// NewEngineWithConfig creates a new metrics engine and starts its bucket
// emitter.
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	defaults := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if config.FailClosed == "" {
		config.FailClosed = FailClosedAsFailure
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requestHists:  make(map[string]*hdrhistogram.Histogram),
		checks:        make(map[string]*CheckStats),
		statuses:      make(map[int]int64),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}
	for _, opt := range opts {
		opt(engine)
	}

	engine.emitterWg.Add(1)
	go engine.runEmitter()

	return engine
}

// FailClosedPolicy returns the policy requests are classified with.
func (e *Engine) FailClosedPolicy() FailClosedPolicy {
	return e.config.FailClosed
}

// RecordRequest classifies and records one request. It returns the
// outcome so callers can log or tag without classifying twice.
func (e *Engine) RecordRequest(s Sample) Outcome {
	outcome := e.config.FailClosed.Classify(s.StatusCode, s.Err)
	if e.stopped.Load() {
		return outcome
	}

	latencyMicros := e.clamp(s.Latency.Microseconds())

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if s.Operation != "" {
		e.recordRequestHistogram(s.Operation, latencyMicros)
	}

	status := s.StatusCode
	if s.Err != nil {
		status = 0
	}
	e.tallyMu.Lock()
	e.statuses[status]++
	e.tallyMu.Unlock()

	e.totalRequests.Add(1)
	e.totalBytes.Add(s.Bytes)

	switch outcome {
	case OutcomeSuccess:
		e.successRequests.Add(1)
	case OutcomeFailed:
		e.failedRequests.Add(1)
	case OutcomeExcluded:
		e.excludedRequests.Add(1)
	}

	isFailClosed := status == 503
	if isFailClosed {
		e.failClosed.Add(1)
	}

	e.bucketStore.RecordRequest(outcome, isFailClosed)

	if e.observer != nil {
		e.observer.ObserveRequest(s.Operation, status, outcome, s.Latency)
	}
	return outcome
}

func (e *Engine) clamp(micros int64) int64 {
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

// recordRequestHistogram records a latency in a per-operation histogram.
// HDR histogram RecordValue is not thread-safe, so the lock is held.
func (e *Engine) recordRequestHistogram(name string, latencyMicros int64) {
	e.requestHistsMu.Lock()
	defer e.requestHistsMu.Unlock()

	hist, exists := e.requestHists[name]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.requestHists[name] = hist
	}

	_ = hist.RecordValue(latencyMicros)
}

// RecordCheck records one check outcome.
func (e *Engine) RecordCheck(name string, passed bool) {
	if e.stopped.Load() {
		return
	}

	if passed {
		e.checksPassed.Add(1)
	} else {
		e.checksFailed.Add(1)
	}

	e.tallyMu.Lock()
	stats, ok := e.checks[name]
	if !ok {
		stats = &CheckStats{}
		e.checks[name] = stats
	}
	if passed {
		stats.Passed++
	} else {
		stats.Failed++
	}
	e.tallyMu.Unlock()

	if e.observer != nil {
		e.observer.ObserveCheck(name, passed)
	}
}

// RecordIteration records one completed VU iteration.
func (e *Engine) RecordIteration() {
	if e.stopped.Load() {
		return
	}
	e.iterations.Add(1)
	e.bucketStore.RecordIteration()
	if e.observer != nil {
		e.observer.ObserveIteration()
	}
}

// RecordDroppedIteration records an arrival that found no free VU.
func (e *Engine) RecordDroppedIteration() {
	if e.stopped.Load() {
		return
	}
	e.droppedIterations.Add(1)
	e.bucketStore.RecordDropped()
	if e.observer != nil {
		e.observer.ObserveDroppedIteration()
	}
}

// Iterations returns the completed iteration count so far.
func (e *Engine) Iterations() int64 {
	return e.iterations.Load()
}

// DroppedIterations returns the dropped iteration count so far.
func (e *Engine) DroppedIterations() int64 {
	return e.droppedIterations.Load()
}

// SetPhase updates the current run phase.
//
// Executors call this on stage transitions; the phase is stamped on every
// time bucket.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	if e.currentPhase == phase {
		e.phaseMu.Unlock()
		return
	}
	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
	e.phaseMu.Unlock()

	if e.observer != nil {
		e.observer.ObservePhase(phase)
	}
}

// GetPhase returns the current run phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetActiveVUs updates the active VU gauge and its high-water mark.
func (e *Engine) SetActiveVUs(count int) {
	n := int32(count)
	e.activeVUs.Store(n)
	for {
		cur := e.maxActiveVUs.Load()
		if n <= cur || e.maxActiveVUs.CompareAndSwap(cur, n) {
			break
		}
	}
	if e.observer != nil {
		e.observer.ObserveActiveVUs(count)
	}
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.bucketStore.CreateBucket(
		bucketTotals{
			requests:   e.totalRequests.Load(),
			failures:   e.failedRequests.Load(),
			bytes:      e.totalBytes.Load(),
			dropped:    e.droppedIterations.Load(),
			iterations: e.iterations.Load(),
		},
		e.GetLatencyPercentiles(),
		e.GetActiveVUs(),
		e.GetPhase(),
	)
}

// GetLatencyPercentiles returns current overall latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// LatencyQuantile returns the overall latency at percentile p (0-100).
func (e *Engine) LatencyQuantile(p float64) time.Duration {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return micros(e.latencyHist.ValueAtQuantile(p))
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func latencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(hist.Min()),
		Max:    micros(hist.Max()),
		Mean:   time.Duration(hist.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(hist.StdDev() * float64(time.Microsecond)),
		P50:    micros(hist.ValueAtQuantile(50)),
		P90:    micros(hist.ValueAtQuantile(90)),
		P95:    micros(hist.ValueAtQuantile(95)),
		P99:    micros(hist.ValueAtQuantile(99)),
		Count:  hist.TotalCount(),
	}
}

// Snapshot returns a point-in-time view of all metrics, or the frozen
// final view once Stop has returned.
func (e *Engine) Snapshot() *Snapshot {
	if e.stopped.Load() && e.final != nil {
		return e.final
	}
	return e.snapshot()
}

func (e *Engine) snapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := latencyStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	e.tallyMu.Lock()
	statuses := make(map[int]int64, len(e.statuses))
	for code, n := range e.statuses {
		statuses[code] = n
	}
	e.tallyMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()
	excluded := e.excludedRequests.Load()

	overallRPS := 0.0
	if elapsed.Seconds() > 0 {
		overallRPS = float64(totalReqs) / elapsed.Seconds()
	}
	steadyRPS, steadyBuckets := e.bucketStore.CalculateSteadyStateRPS()
	rps := overallRPS
	if steadyBuckets > 0 {
		rps = steadyRPS
	}

	errorRate := 0.0
	if counted := totalReqs - excluded; counted > 0 {
		errorRate = float64(failedReqs) / float64(counted)
	}

	passed, failed := e.checksPassed.Load(), e.checksFailed.Load()
	checkRate := 1.0
	if passed+failed > 0 {
		checkRate = float64(passed) / float64(passed+failed)
	}

	return &Snapshot{
		TotalRequests:       totalReqs,
		SuccessRequests:     e.successRequests.Load(),
		FailedRequests:      failedReqs,
		ExcludedRequests:    excluded,
		FailClosedResponses: e.failClosed.Load(),
		TotalBytes:          e.totalBytes.Load(),
		Iterations:          e.iterations.Load(),
		DroppedIterations:   e.droppedIterations.Load(),
		ChecksPassed:        passed,
		ChecksFailed:        failed,
		Latency:             latency,
		RPS:                 rps,
		SteadyStateRPS:      steadyRPS,
		ErrorRate:           errorRate,
		CheckRate:           checkRate,
		ActiveVUs:           e.GetActiveVUs(),
		MaxActiveVUs:        int(e.maxActiveVUs.Load()),
		StatusCodes:         statuses,
		CurrentPhase:        e.GetPhase(),
		Elapsed:             elapsed,
		StartTime:           e.startTime,
		Timestamp:           time.Now(),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetRequestStats returns latency statistics per operation.
func (e *Engine) GetRequestStats() map[string]LatencyStats {
	e.requestHistsMu.Lock()
	defer e.requestHistsMu.Unlock()

	result := make(map[string]LatencyStats, len(e.requestHists))
	for name, hist := range e.requestHists {
		result[name] = latencyStats(hist)
	}
	return result
}

// GetCheckStats returns tallies per check name.
func (e *Engine) GetCheckStats() map[string]CheckStats {
	e.tallyMu.Lock()
	defer e.tallyMu.Unlock()

	result := make(map[string]CheckStats, len(e.checks))
	for name, stats := range e.checks {
		result[name] = *stats
	}
	return result
}

// CheckNames returns recorded check names, sorted.
func (e *Engine) CheckNames() []string {
	stats := e.GetCheckStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop stops the emitter, emits a final bucket and freezes the engine.
// It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()

		e.SetPhase(PhaseDone)
		e.emitBucket()

		e.final = e.snapshot()
		e.stopped.Store(true)
	})
}
