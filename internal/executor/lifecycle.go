package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// abortWait bounds how long cancelled iterations may take to unwind after
// the graceful stop window has expired.
const abortWait = 5 * time.Second

var errNotInitialized = errors.New("executor not initialized: call Init before Run")

// lifecycle is the run bookkeeping every executor shares.
type lifecycle struct {
	mu        sync.Mutex
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	running   atomic.Bool
}

// start derives the scheduling context, which expires after d.
func (l *lifecycle) start(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(ctx, d)

	l.mu.Lock()
	l.startTime = time.Now()
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	l.running.Store(true)
	return runCtx, cancel
}

func (l *lifecycle) finish() {
	l.running.Store(false)
	l.mu.Lock()
	close(l.done)
	l.mu.Unlock()
}

func (l *lifecycle) started() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startTime
}

func (l *lifecycle) elapsed() time.Duration {
	if start := l.started(); !start.IsZero() {
		return time.Since(start)
	}
	return 0
}

func (l *lifecycle) progress(total time.Duration) float64 {
	if !l.running.Load() {
		if l.started().IsZero() {
			return 0.0
		}
		return 1.0
	}
	if total <= 0 {
		return 0.0
	}
	progress := float64(l.elapsed()) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// stop cancels scheduling and waits for Run to return or ctx to expire.
func (l *lifecycle) stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// iterationContext returns the context iterations run under. It survives
// the end of scheduling so in-flight iterations can finish, and is only
// cancelled once the graceful stop window expires.
func iterationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(ctx))
}

// drain waits up to grace for in-flight iterations, then cancels them and
// waits for them to unwind. It reports whether they finished in time.
func drain(logger *slog.Logger, grace time.Duration, wait func(time.Duration) bool, cancelIterations context.CancelFunc) bool {
	if wait(grace) {
		return true
	}

	logger.Warn("graceful stop expired, cancelling in-flight iterations",
		slog.Duration("gracefulStop", grace))
	cancelIterations()
	if !wait(abortWait) {
		logger.Error("iterations did not unwind after cancellation",
			slog.Duration("waited", abortWait))
	}
	return false
}

// waitChan adapts a completion channel to drain.
func waitChan(done <-chan struct{}) func(time.Duration) bool {
	return func(timeout time.Duration) bool {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-done:
			return true
		case <-timer.C:
			return false
		}
	}
}

// waitGroupDone closes the returned channel once wg's counter reaches zero.
func waitGroupDone(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func scenarioLogger(logger *slog.Logger, cfg *Config) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		slog.String("scenario", cfg.Name),
		slog.String("executor", string(cfg.Type.Canonical())),
	)
}
