package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/runner"
)

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// Each VU runs iterations back-to-back (closed model), optionally with
// pacing between iterations. When Iterations is set, the VUs share that
// budget and the scenario ends as soon as it is spent, even if the
// duration has not elapsed.
//
// Use cases:
//   - Smoke tests (a couple of VUs, a fixed iteration count)
//   - Determining max throughput for N concurrent users
//   - Simple soak testing
type ConstantVUs struct {
	lifecycle

	config    *Config
	scheduler *runner.VUScheduler
	metrics   *metrics.Engine

	acquired  atomic.Int64 // iterations handed out against the budget
	activeVUs atomic.Int32
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type.Canonical() != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *runner.VUScheduler) error {
	if e.config == nil {
		return errNotInitialized
	}
	e.scheduler = scheduler
	e.metrics = scheduler.Runtime().Metrics
	logger := scenarioLogger(scheduler.Logger(), e.config)

	runCtx, cancel := e.start(ctx, e.config.Duration)
	defer cancel()
	defer e.finish()

	iterCtx, cancelIterations := iterationContext(ctx)
	defer cancelIterations()

	acquire := func() bool { return e.acquire(runCtx) }

	e.metrics.SetPhase(metrics.PhaseSteady)
	logger.Info("scenario started",
		slog.Int("vus", e.config.VUs),
		slog.Duration("duration", e.config.Duration),
		slog.Int64("iterations", e.config.Iterations))

	var wg sync.WaitGroup
	for i := 0; i < e.config.VUs; i++ {
		vu := scheduler.SpawnVU()
		wg.Add(1)
		e.activeVUs.Add(1)
		go func() {
			defer wg.Done()
			defer e.activeVUs.Add(-1)
			scheduler.RunVU(iterCtx, vu, acquire)
		}()
	}
	scheduler.UpdateMetrics()

	allDone := waitGroupDone(&wg)

	select {
	case <-runCtx.Done():
	case <-allDone:
		logger.Info("iteration budget spent", slog.Int64("iterations", e.config.Iterations))
	}

	e.metrics.SetPhase(metrics.PhaseGracefulStop)
	scheduler.StopAllVUs()
	drain(logger, e.config.gracefulStop(), waitChan(allDone), cancelIterations)

	return nil
}

// acquire gates each iteration. VUs loop on the iteration context, which
// outlives runCtx by the graceful stop, so the duration cutoff is checked
// here along with the shared budget.
func (e *ConstantVUs) acquire(runCtx context.Context) bool {
	if runCtx.Err() != nil {
		return false
	}
	budget := e.config.Iterations
	return budget <= 0 || e.acquired.Add(1) <= budget
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	if e.config == nil {
		return 0.0
	}
	if budget := e.config.Iterations; budget > 0 && e.running.Load() {
		byCount := float64(min(e.acquired.Load(), budget)) / float64(budget)
		return max(byCount, e.progress(e.config.Duration))
	}
	return e.progress(e.config.Duration)
}

// GetActiveVUs returns current active VU count.
func (e *ConstantVUs) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	stats := &Stats{
		StartTime:   e.started(),
		CurrentTime: time.Now(),
		Elapsed:     e.elapsed(),
		ActiveVUs:   e.GetActiveVUs(),
	}
	if e.config != nil {
		stats.TotalDuration = e.config.Duration
		stats.TargetVUs = e.config.VUs
		stats.TotalIterations = e.config.Iterations
	}
	if e.metrics != nil {
		stats.Iterations = e.metrics.Iterations()
	}
	return stats
}

// Stop gracefully stops the executor.
func (e *ConstantVUs) Stop(ctx context.Context) error {
	return e.stop(ctx)
}

var _ Executor = (*ConstantVUs)(nil)
