package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}
	defer engine.Stop()

	snapshot := engine.Snapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
	if snapshot.CheckRate != 1 {
		t.Errorf("Initial CheckRate = %v, want 1", snapshot.CheckRate)
	}
}

func TestEngine_RecordRequest(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordRequest(Sample{Operation: "transfer", StatusCode: 200, Latency: 10 * time.Millisecond, Bytes: 1000})
	engine.RecordRequest(Sample{Operation: "transfer", StatusCode: 200, Latency: 20 * time.Millisecond, Bytes: 2000})
	engine.RecordRequest(Sample{Operation: "transfer", StatusCode: 500, Latency: 30 * time.Millisecond, Bytes: 500})
	engine.RecordRequest(Sample{Operation: "read_balance", Latency: time.Second, Err: errors.New("timeout")})

	snapshot := engine.Snapshot()

	if snapshot.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", snapshot.TotalRequests)
	}
	if snapshot.SuccessRequests != 2 {
		t.Errorf("SuccessRequests = %d, want 2", snapshot.SuccessRequests)
	}
	if snapshot.FailedRequests != 2 {
		t.Errorf("FailedRequests = %d, want 2", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 3500 {
		t.Errorf("TotalBytes = %d, want 3500", snapshot.TotalBytes)
	}
	if snapshot.ErrorRate != 0.5 {
		t.Errorf("ErrorRate = %v, want 0.5", snapshot.ErrorRate)
	}
	if snapshot.StatusCodes[200] != 2 || snapshot.StatusCodes[500] != 1 || snapshot.StatusCodes[0] != 1 {
		t.Errorf("StatusCodes = %v", snapshot.StatusCodes)
	}

	stats := engine.GetRequestStats()
	if stats["transfer"].Count != 3 || stats["read_balance"].Count != 1 {
		t.Errorf("GetRequestStats() = %v", stats)
	}
}

func TestEngine_FailClosedPolicies(t *testing.T) {
	tests := []struct {
		policy       FailClosedPolicy
		wantFailed   int64
		wantExcluded int64
		wantRate     float64
	}{
		{FailClosedAsFailure, 2, 0, 0.5},
		{FailClosedAsSuccess, 1, 0, 0.25},
		{FailClosedExcluded, 1, 1, 1.0 / 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := DefaultEngineConfig()
			cfg.FailClosed = tt.policy
			engine := NewEngineWithConfig(cfg)
			defer engine.Stop()

			for _, status := range []int{200, 200, 503, 500} {
				engine.RecordRequest(Sample{StatusCode: status, Latency: time.Millisecond})
			}

			s := engine.Snapshot()
			if s.FailedRequests != tt.wantFailed {
				t.Errorf("FailedRequests = %d, want %d", s.FailedRequests, tt.wantFailed)
			}
			if s.ExcludedRequests != tt.wantExcluded {
				t.Errorf("ExcludedRequests = %d, want %d", s.ExcludedRequests, tt.wantExcluded)
			}
			if s.FailClosedResponses != 1 {
				t.Errorf("FailClosedResponses = %d, want 1", s.FailClosedResponses)
			}
			if diff := s.ErrorRate - tt.wantRate; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ErrorRate = %v, want %v", s.ErrorRate, tt.wantRate)
			}
		})
	}
}

func TestParseFailClosedPolicy(t *testing.T) {
	if p, err := ParseFailClosedPolicy(""); err != nil || p != FailClosedAsFailure {
		t.Errorf("ParseFailClosedPolicy(\"\") = %v, %v", p, err)
	}
	if p, err := ParseFailClosedPolicy("exclude"); err != nil || p != FailClosedExcluded {
		t.Errorf("ParseFailClosedPolicy(exclude) = %v, %v", p, err)
	}
	if _, err := ParseFailClosedPolicy("ignore"); err == nil {
		t.Error("ParseFailClosedPolicy(ignore) expected error")
	}
}

func TestEngine_LatencyPercentiles(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 1; i <= 10; i++ {
		engine.RecordRequest(Sample{StatusCode: 200, Latency: time.Duration(i*10) * time.Millisecond})
	}

	percentiles := engine.GetLatencyPercentiles()

	if percentiles.P50 < 40*time.Millisecond || percentiles.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms (±10ms)", percentiles.P50)
	}
	if percentiles.P99 < 90*time.Millisecond || percentiles.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms (±10ms)", percentiles.P99)
	}
	if percentiles.Min < 9*time.Millisecond || percentiles.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", percentiles.Min)
	}
	if q := engine.LatencyQuantile(95); q < 90*time.Millisecond || q > 110*time.Millisecond {
		t.Errorf("LatencyQuantile(95) = %v, want ~100ms", q)
	}

	mean := engine.Snapshot().Latency.Mean
	if mean < 50*time.Millisecond || mean > 60*time.Millisecond {
		t.Errorf("Mean = %v, want ~55ms", mean)
	}
}

func TestEngine_ChecksAndIterations(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordCheck("status ok", true)
	engine.RecordCheck("status ok", true)
	engine.RecordCheck("status ok", false)
	engine.RecordCheck("has body", true)
	engine.RecordIteration()
	engine.RecordIteration()
	engine.RecordDroppedIteration()

	s := engine.Snapshot()
	if s.ChecksPassed != 3 || s.ChecksFailed != 1 {
		t.Errorf("checks = %d/%d, want 3/1", s.ChecksPassed, s.ChecksFailed)
	}
	if s.CheckRate != 0.75 {
		t.Errorf("CheckRate = %v, want 0.75", s.CheckRate)
	}
	if s.Iterations != 2 || s.DroppedIterations != 1 {
		t.Errorf("iterations = %d dropped = %d, want 2 and 1", s.Iterations, s.DroppedIterations)
	}

	stats := engine.GetCheckStats()
	if stats["status ok"].Passed != 2 || stats["status ok"].Failed != 1 {
		t.Errorf("status ok = %+v", stats["status ok"])
	}
	if names := engine.CheckNames(); len(names) != 2 || names[0] != "has body" {
		t.Errorf("CheckNames() = %v", names)
	}
}

func TestEngine_Phase(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	phases := []Phase{PhaseRampUp, PhaseSteady, PhaseSteady, PhaseRampDown}
	for _, phase := range phases {
		engine.SetPhase(phase)
		if engine.GetPhase() != phase {
			t.Errorf("After SetPhase(%v), GetPhase() = %v", phase, engine.GetPhase())
		}
	}

	if history := engine.GetPhaseHistory(); len(history) != 3 {
		t.Errorf("PhaseHistory length = %d, want 3", len(history))
	}
}

func TestEngine_ActiveVUsHighWater(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.SetActiveVUs(5)
	engine.SetActiveVUs(12)
	engine.SetActiveVUs(3)

	s := engine.Snapshot()
	if s.ActiveVUs != 3 || s.MaxActiveVUs != 12 {
		t.Errorf("ActiveVUs = %d MaxActiveVUs = %d, want 3 and 12", s.ActiveVUs, s.MaxActiveVUs)
	}
}

func TestEngine_StopFreezes(t *testing.T) {
	engine := NewEngine()
	engine.RecordRequest(Sample{StatusCode: 200, Latency: time.Millisecond})
	engine.Stop()
	engine.Stop()

	engine.RecordRequest(Sample{StatusCode: 200, Latency: time.Millisecond})
	engine.RecordIteration()

	s := engine.Snapshot()
	if s.TotalRequests != 1 || s.Iterations != 0 {
		t.Errorf("after Stop: requests = %d iterations = %d, want 1 and 0", s.TotalRequests, s.Iterations)
	}
	if s.CurrentPhase != PhaseDone {
		t.Errorf("phase = %v, want %v", s.CurrentPhase, PhaseDone)
	}
	if engine.Snapshot() != s {
		t.Error("Snapshot() after Stop should return the frozen snapshot")
	}
}

func TestEngine_ConcurrentRecording(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	const workers, perWorker = 50, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				engine.RecordRequest(Sample{Operation: "transfer", StatusCode: 200, Latency: time.Millisecond})
				engine.RecordCheck("ok", true)
				engine.RecordIteration()
			}
		}()
	}
	wg.Wait()

	s := engine.Snapshot()
	if s.TotalRequests != workers*perWorker || s.Latency.Count != workers*perWorker {
		t.Errorf("TotalRequests = %d Latency.Count = %d, want %d", s.TotalRequests, s.Latency.Count, workers*perWorker)
	}
	if s.ChecksPassed != workers*perWorker || s.Iterations != workers*perWorker {
		t.Errorf("ChecksPassed = %d Iterations = %d", s.ChecksPassed, s.Iterations)
	}
}

func TestEngine_TimeSeries(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.BucketInterval = 10 * time.Millisecond
	engine := NewEngineWithConfig(cfg)

	engine.SetPhase(PhaseSteady)
	engine.RecordRequest(Sample{StatusCode: 200, Latency: time.Millisecond})
	time.Sleep(50 * time.Millisecond)
	engine.Stop()

	buckets := engine.GetTimeSeries()
	if len(buckets) < 2 {
		t.Fatalf("GetTimeSeries() returned %d buckets, want >= 2", len(buckets))
	}
	var total int64
	for _, b := range buckets {
		total += b.IntervalRequests
	}
	if total != 1 {
		t.Errorf("sum of IntervalRequests = %d, want 1", total)
	}
	if last := buckets[len(buckets)-1]; last.Phase != PhaseDone || last.TotalRequests != 1 {
		t.Errorf("last bucket = %+v", last)
	}
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusMetrics(reg)

	engine := NewEngine(WithObserver(prom))
	defer engine.Stop()

	engine.RecordRequest(Sample{Operation: "transfer", StatusCode: 200, Latency: 5 * time.Millisecond})
	engine.RecordRequest(Sample{Operation: "transfer", StatusCode: 503, Latency: 5 * time.Millisecond})
	engine.RecordCheck("ok", false)
	engine.RecordIteration()
	engine.RecordDroppedIteration()
	engine.SetActiveVUs(7)
	engine.SetPhase(PhaseSteady)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"walletprobe_requests_total", map[string]string{"operation": "transfer", "status": "503", "outcome": "failed"}, 1},
		{"walletprobe_checks_total", map[string]string{"check": "ok", "result": "fail"}, 1},
		{"walletprobe_iterations_total", nil, 1},
		{"walletprobe_dropped_iterations_total", nil, 1},
		{"walletprobe_active_vus", nil, 7},
		{"walletprobe_run_phase", map[string]string{"phase": "steady"}, 1},
		{"walletprobe_run_phase", map[string]string{"phase": "init"}, 0},
	}

	for _, tt := range tests {
		if got := gatherValue(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

// gatherValue returns the counter or gauge value of the series matching
// name and labels, or -1 when there is none.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return -1
}
