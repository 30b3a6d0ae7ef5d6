package engine

import (
	"sort"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/threshold"
)

// Report contains the complete results of a run.
type Report struct {
	// Run metadata
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Target      string        `json:"target"`
	RunID       string        `json:"runId,omitempty"`
	Executor    string        `json:"executor"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	// Passed is the verdict: every threshold expression held.
	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	Operations []OperationStats      `json:"operations,omitempty"`
	Checks     []CheckStats          `json:"checks,omitempty"`
	Scenario   *executor.Stats       `json:"scenario,omitempty"`
	Phases     []metrics.PhaseChange `json:"phases,omitempty"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`

	// Interrupted is set when the run was cancelled before its duration
	// elapsed.
	Interrupted bool   `json:"interrupted,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OperationStats contains latency statistics for one operation kind.
type OperationStats struct {
	Operation string               `json:"operation"`
	Count     int64                `json:"count"`
	Latency   metrics.LatencyStats `json:"latency"`
}

// CheckStats contains the tally of one named check.
type CheckStats struct {
	Name   string  `json:"name"`
	Passed int64   `json:"passed"`
	Failed int64   `json:"failed"`
	Rate   float64 `json:"rate"`
}

// FailedThresholds returns the expressions that did not hold.
func (r *Report) FailedThresholds() []threshold.Result {
	var failed []threshold.Result
	for _, t := range r.Thresholds {
		if !t.Passed {
			failed = append(failed, t)
		}
	}
	return failed
}

func (e *Engine) buildReport(me *metrics.Engine, start, end time.Time) *Report {
	results, passed := e.thresholds.Evaluate(me)

	report := &Report{
		Name:        e.config.Name,
		Description: e.config.Description,
		Target:      e.config.Target.BaseURL,
		RunID:       e.config.Workload.RunID,
		Executor:    string(e.execConfig.Type.Canonical()),
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Passed:      passed,
		Thresholds:  results,
		Metrics:     me.Snapshot(),
		Scenario:    e.executor.GetStats(),
		Phases:      me.GetPhaseHistory(),
		TimeSeries:  me.GetTimeSeries(),
	}

	requestStats := me.GetRequestStats()
	ops := make([]string, 0, len(requestStats))
	for op := range requestStats {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		stats := requestStats[op]
		report.Operations = append(report.Operations, OperationStats{
			Operation: op,
			Count:     stats.Count,
			Latency:   stats,
		})
	}

	checkStats := me.GetCheckStats()
	for _, name := range me.CheckNames() {
		c := checkStats[name]
		report.Checks = append(report.Checks, CheckStats{
			Name:   name,
			Passed: c.Passed,
			Failed: c.Failed,
			Rate:   c.Rate(),
		})
	}

	return report
}
