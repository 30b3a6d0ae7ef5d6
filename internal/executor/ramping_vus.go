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

// controllerInterval is how often the ramp controller samples its target.
const controllerInterval = 100 * time.Millisecond

// RampingVUs ramps VU count up and down according to stages.
//
// A single controller goroutine samples the interpolated target every
// 100ms and scales the VU pool to it. Excess VUs are asked to stop and
// finish their current iteration; they are never interrupted mid-request.
//
// Example stages:
//
//	startVUs: 0
//	stages:
//	  - duration: 30s
//	    target: 50     # Ramp from 0 to 50 VUs over 30s
//	  - duration: 1m
//	    target: 50     # Hold 50 VUs
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	lifecycle

	config    *Config
	scheduler *runner.VUScheduler
	metrics   *metrics.Engine
	logger    *slog.Logger

	targetVUs    atomic.Int32
	currentStage atomic.Int32

	// Serialises scaling decisions
	mu sync.Mutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type.Canonical() != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context, scheduler *runner.VUScheduler) error {
	if e.config == nil {
		return errNotInitialized
	}
	e.scheduler = scheduler
	e.metrics = scheduler.Runtime().Metrics
	e.logger = scenarioLogger(scheduler.Logger(), e.config)

	totalDuration := e.config.TotalDuration()

	runCtx, cancel := e.start(ctx, totalDuration)
	defer cancel()
	defer e.finish()

	iterCtx, cancelIterations := iterationContext(ctx)
	defer cancelIterations()

	e.logger.Info("scenario started",
		slog.Int("startVUs", e.config.StartVUs),
		slog.Int("stages", len(e.config.Stages)),
		slog.Duration("duration", totalDuration))

	e.currentStage.Store(-1)
	e.adjust(iterCtx, 0)
	e.vuController(runCtx, iterCtx)

	e.metrics.SetPhase(metrics.PhaseGracefulStop)
	e.scheduler.StopAllVUs()
	drain(e.logger, e.config.gracefulStop(), e.scheduler.Wait, cancelIterations)

	e.logger.Info("scenario finished",
		slog.Int64("iterations", e.metrics.Iterations()),
		slog.Int("vus", e.scheduler.Spawned()))
	return nil
}

// vuController adjusts VU count according to stages until runCtx ends.
// VUs it spawns run under iterCtx.
func (e *RampingVUs) vuController(runCtx, iterCtx context.Context) {
	ticker := time.NewTicker(controllerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			e.adjust(iterCtx, e.elapsed())
		}
	}
}

// adjust scales the pool to the target for elapsed.
func (e *RampingVUs) adjust(ctx context.Context, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, stage := TargetAt(e.config.StartVUs, e.config.Stages, elapsed)
	e.targetVUs.Store(int32(target))

	if prev := int(e.currentStage.Swap(int32(stage))); prev != stage && stage < len(e.config.Stages) {
		e.enterStage(stage)
	}

	e.scheduler.ScaleVUs(ctx, target)
}

// enterStage logs the stage change and updates the run phase: a stage
// whose target is above its starting point ramps up, below ramps down,
// equal holds steady.
func (e *RampingVUs) enterStage(idx int) {
	stage := e.config.Stages[idx]
	from := e.config.StartVUs
	if idx > 0 {
		from = e.config.Stages[idx-1].Target
	}

	switch {
	case stage.Target > from:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	case stage.Target < from:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	default:
		e.metrics.SetPhase(metrics.PhaseSteady)
	}

	e.logger.Info("stage started",
		slog.Int("stage", idx),
		slog.String("name", stage.Name),
		slog.Int("from", from),
		slog.Int("target", stage.Target),
		slog.Duration("duration", stage.Duration))
}

// TargetAt returns the interpolated VU target after elapsed and the index
// of the stage it falls in. Each stage moves linearly from the previous
// stage's target (startVUs for the first) to its own. Past the last stage
// the final target holds and the index equals len(stages).
func TargetAt(startVUs int, stages []Stage, elapsed time.Duration) (int, int) {
	var stageStart time.Duration
	prevTarget := startVUs

	for i, stage := range stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			progress = min(max(progress, 0), 1)

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5), i
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	return prevTarget, len(stages)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	if e.config == nil {
		return 0.0
	}
	return e.progress(e.config.TotalDuration())
}

// GetActiveVUs returns current active VU count.
func (e *RampingVUs) GetActiveVUs() int {
	if e.scheduler == nil {
		return 0
	}
	return e.scheduler.LiveVUCount()
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	stats := &Stats{
		StartTime:   e.started(),
		CurrentTime: time.Now(),
		Elapsed:     e.elapsed(),
		ActiveVUs:   e.GetActiveVUs(),
		TargetVUs:   int(e.targetVUs.Load()),
	}
	if e.metrics != nil {
		stats.Iterations = e.metrics.Iterations()
	}
	if e.config != nil {
		stageIdx := int(e.currentStage.Load())
		stats.TotalDuration = e.config.TotalDuration()
		stats.TotalStages = len(e.config.Stages)
		stats.CurrentStage = max(stageIdx, 0)
		if stageIdx >= 0 && stageIdx < len(e.config.Stages) {
			stats.CurrentStageName = e.config.Stages[stageIdx].Name
		}
	}
	return stats
}

// Stop gracefully stops the executor.
func (e *RampingVUs) Stop(ctx context.Context) error {
	return e.stop(ctx)
}

var _ Executor = (*RampingVUs)(nil)
