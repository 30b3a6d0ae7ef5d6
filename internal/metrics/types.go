package metrics

import "time"

// Phase represents a phase of the run.
type Phase string

const (
	// PhaseInit is the phase before the executor starts
	PhaseInit Phase = "init"

	// PhaseRampUp is a stage where target concurrency is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is the phase at constant target load
	PhaseSteady Phase = "steady"

	// PhaseRampDown is a stage where target concurrency is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhaseGracefulStop is the drain window after the duration elapsed
	PhaseGracefulStop Phase = "graceful-stop"

	// PhaseDone indicates the run has completed
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// TotalRequests is the number of requests sent, fail-closed included
	TotalRequests int64 `json:"totalRequests"`

	// SuccessRequests is the number of requests classified as success
	SuccessRequests int64 `json:"successRequests"`

	// FailedRequests is the number of requests classified as failed
	// (transport error or status >= 400, subject to the fail-closed policy)
	FailedRequests int64 `json:"failedRequests"`

	// ExcludedRequests are fail-closed responses left out of the failure
	// rate under the exclude policy
	ExcludedRequests int64 `json:"excludedRequests"`

	// FailClosedResponses counts 503 responses regardless of policy
	FailClosedResponses int64 `json:"failClosedResponses"`

	// TotalBytes is the total response bytes received
	TotalBytes int64 `json:"totalBytes"`

	// Iterations is the number of completed VU iterations
	Iterations int64 `json:"iterations"`

	// DroppedIterations counts arrival ticks that found no free VU
	DroppedIterations int64 `json:"droppedIterations"`

	ChecksPassed int64 `json:"checksPassed"`
	ChecksFailed int64 `json:"checksFailed"`

	// Latency contains latency statistics over every request
	Latency LatencyStats `json:"latency"`

	// RPS is the steady-state request rate when available, else overall
	RPS float64 `json:"rps"`

	// SteadyStateRPS is the RPS calculated only from steady-state buckets
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// ErrorRate is FailedRequests over the requests the failure rate counts
	ErrorRate float64 `json:"errorRate"`

	// CheckRate is the fraction of passed checks (1 when none ran)
	CheckRate float64 `json:"checkRate"`

	ActiveVUs    int `json:"activeVUs"`
	MaxActiveVUs int `json:"maxActiveVUs"`

	// StatusCodes counts responses by status; transport errors are under 0
	StatusCodes map[int]int64 `json:"statusCodes"`

	CurrentPhase Phase         `json:"currentPhase"`
	Elapsed      time.Duration `json:"elapsed"`
	StartTime    time.Time     `json:"startTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Rate returns count per second of elapsed run time.
func (s *Snapshot) Rate(count int64) float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(count) / s.Elapsed.Seconds()
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// CheckStats tallies one named check.
type CheckStats struct {
	Passed int64 `json:"passed"`
	Failed int64 `json:"failed"`
}

// Rate returns the pass fraction.
func (c CheckStats) Rate() float64 {
	total := c.Passed + c.Failed
	if total == 0 {
		return 0
	}
	return float64(c.Passed) / float64(total)
}

// TimeBucket represents metrics for one emission interval.
//
// Each bucket carries cumulative totals and the deltas for its interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters
	TotalRequests   int64 `json:"totalRequests"`
	TotalFailures   int64 `json:"totalFailures"`
	TotalBytes      int64 `json:"totalBytes"`
	TotalDropped    int64 `json:"totalDropped"`
	TotalIterations int64 `json:"totalIterations"`

	// Interval metrics
	IntervalRequests   int64   `json:"intervalRequests"`
	IntervalRPS        float64 `json:"intervalRPS"`
	IntervalIterations int64   `json:"intervalIterations"`
	IntervalDropped    int64   `json:"intervalDropped"`
	IntervalFailClosed int64   `json:"intervalFailClosed"`
	IntervalErrorRate  float64 `json:"intervalErrorRate"`

	// Latency percentiles (from HDR histogram at this point in time)
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 7200)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// FailClosed decides how 503 responses count toward the failure rate
	FailClosed FailClosedPolicy
}

// DefaultEngineConfig returns the default configuration. MaxBuckets covers
// a two hour soak at one bucket per second.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       7200,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
		FailClosed:       FailClosedAsFailure,
	}
}
