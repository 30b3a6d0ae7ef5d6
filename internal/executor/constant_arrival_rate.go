package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/rate"
	"github.com/wesleyorama2/walletprobe/internal/runner"
)

// ConstantArrivalRate maintains a fixed iteration rate (open model).
//
// Unlike VU-based executors where throughput depends on response time,
// arrival-rate executors schedule iterations at a constant rate regardless
// of how long each iteration takes.
//
// The executor uses a LeakyBucket to schedule iterations and keeps a pool
// of reusable VUs to execute them. The pool starts at PreAllocatedVUs and
// grows on demand up to MaxVUs. A tick that finds no idle VU with the pool
// already at MaxVUs is dropped and counted as a dropped iteration: the
// schedule never waits for capacity, so a slow service shows up as a
// capacity shortfall rather than as a silently lower rate.
//
// Example:
//
//	config:
//	  type: constant-arrival-rate
//	  rate: 20               # 20 iterations
//	  timeUnit: 1s           # per second
//	  duration: 3m
//	  preAllocatedVUs: 50
//	  maxVUs: 200
type ConstantArrivalRate struct {
	lifecycle

	config    *Config
	scheduler *runner.VUScheduler
	metrics   *metrics.Engine
	logger    *slog.Logger

	// Rate limiter
	bucket *rate.LeakyBucket

	// VU pool management
	idle       chan *runner.VirtualUser // VUs ready to execute
	allVUs     []*runner.VirtualUser    // All VUs (for cleanup)
	currentVUs atomic.Int32
	vuPoolMu   sync.Mutex

	iterations atomic.Int64
	dropped    atomic.Int64

	// In-flight iterations
	wg sync.WaitGroup
}

// NewConstantArrivalRate creates a new constant arrival rate executor.
func NewConstantArrivalRate() *ConstantArrivalRate {
	return &ConstantArrivalRate{}
}

// Type returns the executor type.
func (e *ConstantArrivalRate) Type() Type {
	return TypeConstantArrivalRate
}

// Init initializes the executor with configuration. The pool defaults to
// one pre-allocated VU, and MaxVUs to PreAllocatedVUs.
func (e *ConstantArrivalRate) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantArrivalRate {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantArrivalRate, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	cfg := *config
	if cfg.TimeUnit <= 0 {
		cfg.TimeUnit = time.Second
	}
	if cfg.PreAllocatedVUs <= 0 {
		cfg.PreAllocatedVUs = 1
	}
	if cfg.MaxVUs < cfg.PreAllocatedVUs {
		cfg.MaxVUs = cfg.PreAllocatedVUs
	}

	e.config = &cfg
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantArrivalRate) Run(ctx context.Context, scheduler *runner.VUScheduler) error {
	if e.config == nil {
		return errNotInitialized
	}
	e.scheduler = scheduler
	e.metrics = scheduler.Runtime().Metrics
	e.logger = scenarioLogger(scheduler.Logger(), e.config)

	// A stalled scheduler may catch up by at most one pool's worth of ticks.
	e.bucket = rate.NewLeakyBucket(e.config.Rate, e.config.TimeUnit, rate.WithBurst(float64(e.config.MaxVUs)))

	e.idle = make(chan *runner.VirtualUser, e.config.MaxVUs)
	e.allVUs = make([]*runner.VirtualUser, 0, e.config.MaxVUs)

	runCtx, cancel := e.start(ctx, e.config.Duration)
	defer cancel()
	defer e.finish()

	iterCtx, cancelIterations := iterationContext(ctx)
	defer cancelIterations()

	for i := 0; i < e.config.PreAllocatedVUs; i++ {
		e.idle <- e.spawnVU()
	}
	scheduler.UpdateMetrics()

	e.metrics.SetPhase(metrics.PhaseSteady)
	e.logger.Info("scenario started",
		slog.Float64("rate", e.config.Rate),
		slog.Duration("timeUnit", e.config.TimeUnit),
		slog.Duration("duration", e.config.Duration),
		slog.Int("preAllocatedVUs", e.config.PreAllocatedVUs),
		slog.Int("maxVUs", e.config.MaxVUs))

	for {
		if err := e.bucket.Wait(runCtx); err != nil {
			break
		}

		vu := e.getVU()
		if vu == nil {
			e.drop()
			continue
		}

		e.wg.Add(1)
		go e.runIteration(iterCtx, vu)
	}

	e.shutdown(cancelIterations)
	return nil
}

// getVU takes an idle VU from the pool, spawning a new one if the pool is
// below MaxVUs. It returns nil when every VU is busy and none may be added.
func (e *ConstantArrivalRate) getVU() *runner.VirtualUser {
	select {
	case vu := <-e.idle:
		return vu
	default:
	}

	e.vuPoolMu.Lock()
	defer e.vuPoolMu.Unlock()

	if int(e.currentVUs.Load()) >= e.config.MaxVUs {
		return nil
	}
	vu := e.spawnVULocked()
	e.scheduler.UpdateMetrics()
	return vu
}

func (e *ConstantArrivalRate) spawnVU() *runner.VirtualUser {
	e.vuPoolMu.Lock()
	defer e.vuPoolMu.Unlock()
	return e.spawnVULocked()
}

func (e *ConstantArrivalRate) spawnVULocked() *runner.VirtualUser {
	vu := e.scheduler.SpawnVU()
	e.allVUs = append(e.allVUs, vu)
	e.currentVUs.Add(1)
	return vu
}

// drop records a tick that found no capacity. Only the first shortfall
// is logged; the total is logged when the scenario ends.
func (e *ConstantArrivalRate) drop() {
	e.metrics.RecordDroppedIteration()
	if e.dropped.Add(1) == 1 {
		e.logger.Warn("insufficient VUs, dropping iterations",
			slog.Int("maxVUs", e.config.MaxVUs),
			slog.Duration("elapsed", e.elapsed()))
	}
}

// returnVU returns a VU to the pool unless it has been asked to stop.
func (e *ConstantArrivalRate) returnVU(vu *runner.VirtualUser) {
	if vu.Stopping() {
		return
	}

	select {
	case e.idle <- vu:
	default:
		// The pool holds at most MaxVUs, so this cannot block.
	}
}

// runIteration runs a single iteration on a VU.
func (e *ConstantArrivalRate) runIteration(ctx context.Context, vu *runner.VirtualUser) {
	defer e.wg.Done()
	defer e.returnVU(vu)

	if err := vu.RunIteration(ctx); err == nil {
		e.iterations.Add(1)
	}
}

// shutdown stops the pool and waits for in-flight iterations.
func (e *ConstantArrivalRate) shutdown(cancelIterations context.CancelFunc) {
	e.metrics.SetPhase(metrics.PhaseGracefulStop)

	e.vuPoolMu.Lock()
	vus := append([]*runner.VirtualUser(nil), e.allVUs...)
	e.vuPoolMu.Unlock()

	for _, vu := range vus {
		vu.RequestStop()
	}

	drain(e.logger, e.config.gracefulStop(), waitChan(waitGroupDone(&e.wg)), cancelIterations)

	for _, vu := range vus {
		e.scheduler.RemoveVU(vu.ID)
	}

	if dropped := e.GetDroppedIterations(); dropped > 0 {
		e.logger.Warn("scenario finished with dropped iterations",
			slog.Int64("dropped", dropped),
			slog.Int("maxVUs", e.config.MaxVUs))
	}
	ticks := e.bucket.Stats()
	e.logger.Info("scenario finished",
		slog.Int64("iterations", e.iterations.Load()),
		slog.Int("vus", int(e.currentVUs.Load())),
		slog.Int64("ticks", ticks.TotalIterations),
		slog.Duration("scheduledWait", ticks.TotalWaitTime))
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantArrivalRate) GetProgress() float64 {
	if e.config == nil {
		return 0.0
	}
	return e.progress(e.config.Duration)
}

// GetActiveVUs returns the current pool size.
func (e *ConstantArrivalRate) GetActiveVUs() int {
	return int(e.currentVUs.Load())
}

// GetDroppedIterations returns the number of ticks dropped for lack of VUs.
func (e *ConstantArrivalRate) GetDroppedIterations() int64 {
	return e.dropped.Load()
}

// GetStats returns executor statistics.
func (e *ConstantArrivalRate) GetStats() *Stats {
	stats := &Stats{
		StartTime:         e.started(),
		CurrentTime:       time.Now(),
		Elapsed:           e.elapsed(),
		ActiveVUs:         e.GetActiveVUs(),
		Iterations:        e.iterations.Load(),
		DroppedIterations: e.GetDroppedIterations(),
	}
	if e.config != nil {
		stats.TotalDuration = e.config.Duration
		stats.TargetVUs = e.config.MaxVUs
		stats.TargetRate = e.config.Rate
		stats.TimeUnit = e.config.TimeUnit
	}
	return stats
}

// Stop gracefully stops the executor.
func (e *ConstantArrivalRate) Stop(ctx context.Context) error {
	return e.stop(ctx)
}

var _ Executor = (*ConstantArrivalRate)(nil)
