// Package engine is the orchestrator of a walletprobe run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/check"
	"github.com/wesleyorama2/walletprobe/internal/config"
	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/identity"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/runner"
	"github.com/wesleyorama2/walletprobe/internal/threshold"
	"github.com/wesleyorama2/walletprobe/internal/transport"
	"github.com/wesleyorama2/walletprobe/internal/workload"
)

// Engine is the main orchestrator for a run.
//
// It coordinates:
//   - Configuration validation (everything is checked in New)
//   - Scenario execution with the configured executor
//   - Metrics collection and aggregation
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := profile.Get("smoke")
//	eng, _ := engine.New(cfg)
//	report, _ := eng.Run(context.Background())
//	fmt.Printf("passed: %v\n", report.Passed)
//
// An Engine runs once.
type Engine struct {
	config *config.RunConfig

	builder    *workload.Builder
	tokens     *identity.TokenCache
	verifier   *check.Verifier
	thresholds *threshold.Set
	pacing     runner.Pacing
	executor   executor.Executor
	execConfig *executor.Config
	transport  transport.Transport
	ownedHTTP  *transport.HTTPTransport

	metricsConfig metrics.EngineConfig
	observer      metrics.Observer
	logger        *slog.Logger

	mu            sync.Mutex
	ran           bool
	metricsEngine *metrics.Engine
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransport replaces the HTTP transport built from the target section.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver mirrors every metric event to o, e.g. a Prometheus exporter.
func WithObserver(o metrics.Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithMetricsConfig overrides the metrics engine configuration. The
// fail-closed policy always comes from the run configuration.
func WithMetricsConfig(cfg metrics.EngineConfig) Option {
	return func(e *Engine) {
		e.metricsConfig = cfg
	}
}

// New applies defaults to cfg, validates it and prepares every component
// of the run. All configuration problems surface here, before any
// iteration starts.
func New(cfg *config.RunConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("run configuration is required")
	}

	e := &Engine{
		config:        cfg,
		metricsConfig: metrics.DefaultEngineConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	auth, err := cfg.ToAuth()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if e.tokens, err = identity.NewTokenCache(auth); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}

	if e.builder, err = workload.NewBuilder(cfg.ToWorkload()); err != nil {
		return nil, err
	}
	if e.verifier, err = check.NewVerifier(cfg.Checks); err != nil {
		return nil, fmt.Errorf("invalid checks: %w", err)
	}
	if e.thresholds, err = threshold.NewSet(cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if e.pacing, err = cfg.ToPacing(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	policy, err := cfg.ToFailClosedPolicy()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	e.metricsConfig.FailClosed = policy

	if e.execConfig, err = cfg.ToExecutorConfig(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if e.executor, err = executor.CreateAndInitExecutor(context.Background(), e.execConfig); err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	if e.transport == nil {
		httpCfg, err := cfg.ToHTTP()
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		tr, err := transport.NewHTTPTransport(cfg.Target.BaseURL, httpCfg)
		if err != nil {
			return nil, err
		}
		e.transport = tr
		e.ownedHTTP = tr
	}

	return e, nil
}

// Executor returns the executor the run is driven by.
func (e *Engine) Executor() executor.Executor {
	return e.executor
}

// Metrics returns the live metrics engine, or nil before Run.
func (e *Engine) Metrics() *metrics.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metricsEngine
}

// Run executes the scenario and returns the report.
//
// The report is always complete, even when ctx is cancelled mid-run:
// cancellation ends scheduling early, in-flight iterations still get the
// graceful stop window, and thresholds are evaluated over what was
// recorded. A threshold failure is signalled through Report.Passed, not
// the error; the error is reserved for runs that could not execute.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		return nil, errors.New("engine has already run")
	}
	e.ran = true

	var opts []metrics.Option
	if e.observer != nil {
		opts = append(opts, metrics.WithObserver(e.observer))
	}
	me := metrics.NewEngineWithConfig(e.metricsConfig, opts...)
	e.metricsEngine = me
	e.mu.Unlock()

	defer e.tokens.Reset()
	if e.ownedHTTP != nil {
		defer e.ownedHTTP.Close()
	}

	scheduler, err := runner.NewVUScheduler(runner.Runtime{
		Builder:   e.builder,
		Tokens:    e.tokens,
		Transport: e.transport,
		Verifier:  e.verifier,
		Metrics:   me,
		Pacing:    e.pacing,
		Logger:    e.logger,
	})
	if err != nil {
		me.Stop()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	e.logger.Info("run started",
		slog.String("name", e.config.Name),
		slog.String("executor", string(e.execConfig.Type.Canonical())),
		slog.String("target", e.config.Target.BaseURL),
		slog.Duration("estimatedDuration", executor.CalculateEstimatedDuration(e.execConfig)),
		slog.Int("maxVUs", executor.CalculateMaxVUs(e.execConfig)))

	start := time.Now()
	runErr := e.executor.Run(ctx, scheduler)
	me.Stop()
	end := time.Now()

	report := e.buildReport(me, start, end)
	report.Interrupted = ctx.Err() != nil
	if runErr != nil {
		report.Error = runErr.Error()
	}

	e.logVerdict(report)

	if runErr != nil {
		return report, fmt.Errorf("run failed: %w", runErr)
	}
	return report, nil
}

func (e *Engine) logVerdict(r *Report) {
	attrs := []any{
		slog.Bool("passed", r.Passed),
		slog.Int64("requests", r.Metrics.TotalRequests),
		slog.Int64("iterations", r.Metrics.Iterations),
		slog.Int64("droppedIterations", r.Metrics.DroppedIterations),
		slog.Float64("errorRate", r.Metrics.ErrorRate),
		slog.Duration("p95", r.Metrics.Latency.P95),
	}
	if !r.Passed {
		for _, t := range r.Thresholds {
			if !t.Passed {
				e.logger.Warn("threshold crossed", slog.String("metric", t.Metric), slog.String("detail", t.Message))
			}
		}
		e.logger.Warn("run failed thresholds", attrs...)
		return
	}
	e.logger.Info("run passed", attrs...)
}
