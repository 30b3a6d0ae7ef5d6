package executor

import (
	"context"
	"fmt"
	"time"
)

// NewExecutor creates a new executor of the specified type.
//
// Supported types:
//   - "constant-arrival-rate" - Fixed iteration rate (open model)
//   - "constant-vus" (alias "constant-concurrency") - Fixed number of VUs
//   - "ramping-vus" (alias "ramping-concurrency") - VU count follows stages
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType.Canonical() {
	case TypeConstantArrivalRate:
		return NewConstantArrivalRate(), nil
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	return exec, nil
}

// IsValidExecutorType returns true if the type names an executor or alias.
func IsValidExecutorType(executorType string) bool {
	canonical := Type(executorType).Canonical()
	for _, t := range GetSupportedExecutors() {
		if t == canonical {
			return true
		}
	}
	return false
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{
		TypeConstantArrivalRate,
		TypeConstantVUs,
		TypeRampingVUs,
	}
}

// ExecutorDescription provides documentation for an executor type.
type ExecutorDescription struct {
	Type        Type
	Name        string
	Description string
	UseCases    []string
}

// GetExecutorDescription returns documentation for an executor type.
func GetExecutorDescription(executorType Type) *ExecutorDescription {
	switch executorType.Canonical() {
	case TypeConstantArrivalRate:
		return &ExecutorDescription{
			Type:        TypeConstantArrivalRate,
			Name:        "Constant Arrival Rate",
			Description: "Starts iterations at a fixed rate per time unit regardless of response time. Ticks that find no free VU at maxVUs are dropped and counted.",
			UseCases: []string{
				"Steady-state throughput targets",
				"Soak tests at a fixed transfer rate",
				"Resiliency runs while the service is partitioned",
			},
		}
	case TypeConstantVUs:
		return &ExecutorDescription{
			Type:        TypeConstantVUs,
			Name:        "Constant VUs",
			Description: "Runs a fixed number of VUs back-to-back for a duration, optionally ending early once a shared iteration budget is spent.",
			UseCases: []string{
				"Smoke tests",
				"Determining max throughput for N concurrent clients",
			},
		}
	case TypeRampingVUs:
		return &ExecutorDescription{
			Type:        TypeRampingVUs,
			Name:        "Ramping VUs",
			Description: "Ramps VU count up and down according to stages, interpolating linearly between stage targets.",
			UseCases: []string{
				"Spike tests",
				"Finding the breaking point of the service",
			},
		}
	default:
		return nil
	}
}

// CalculateEstimatedDuration returns the scheduled duration plus the
// graceful stop window, the longest a run of cfg can take.
func CalculateEstimatedDuration(cfg *Config) time.Duration {
	return cfg.TotalDuration() + cfg.gracefulStop()
}

// CalculateMaxVUs returns the maximum number of VUs that might be used.
func CalculateMaxVUs(cfg *Config) int {
	switch cfg.Type.Canonical() {
	case TypeConstantVUs:
		return cfg.VUs
	case TypeRampingVUs:
		maxVUs := cfg.StartVUs
		for _, stage := range cfg.Stages {
			maxVUs = max(maxVUs, stage.Target)
		}
		return maxVUs
	case TypeConstantArrivalRate:
		return max(cfg.MaxVUs, cfg.PreAllocatedVUs, 1)
	default:
		return cfg.VUs
	}
}
