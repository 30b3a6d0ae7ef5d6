// Package executor provides the traffic shapes a run can take.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/runner"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantArrivalRate starts iterations at a fixed rate (open model).
	TypeConstantArrivalRate Type = "constant-arrival-rate"

	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"

	// TypeConstantConcurrency is an alias of TypeConstantVUs.
	TypeConstantConcurrency Type = "constant-concurrency"

	// TypeRampingConcurrency is an alias of TypeRampingVUs.
	TypeRampingConcurrency Type = "ramping-concurrency"
)

// DefaultGracefulStop bounds how long in-flight iterations may run once a
// scenario's duration has elapsed.
const DefaultGracefulStop = 30 * time.Second

// Canonical resolves aliases to their executor type.
func (t Type) Canonical() Type {
	switch t {
	case TypeConstantConcurrency:
		return TypeConstantVUs
	case TypeRampingConcurrency:
		return TypeRampingVUs
	default:
		return t
	}
}

// Executor defines the interface for load generation strategies.
//
// Executors control HOW load is generated: by keeping a VU count, by
// following a VU ramp, or by starting iterations at a fixed rate. They
// never build requests themselves; every iteration runs on a VU obtained
// from the scheduler.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run drives the scenario and blocks until it has drained.
	// Cancelling ctx ends scheduling early; in-flight iterations still
	// get the graceful stop window.
	Run(ctx context.Context, scheduler *runner.VUScheduler) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the scenario early and waits for Run to drain, or for ctx.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this scenario
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	// VU-based executors
	VUs        int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration   time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Iterations int64         `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Arrival-rate executor: Rate iterations per TimeUnit (default 1s)
	Rate            float64       `json:"rate,omitempty" yaml:"rate,omitempty"`
	TimeUnit        time.Duration `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`
	PreAllocatedVUs int           `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int           `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// Ramping executor
	StartVUs int     `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Graceful stop timeout (default 30s)
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	// Iteration stats
	Iterations        int64 `json:"iterations"`
	TotalIterations   int64 `json:"totalIterations,omitempty"` // shared budget for constant-vus
	DroppedIterations int64 `json:"droppedIterations,omitempty"`

	// Stage info (for ramping executors)
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName,omitempty"`
	TotalStages      int    `json:"totalStages,omitempty"`

	// Rate info (for arrival-rate executors)
	TargetRate float64       `json:"targetRate,omitempty"`
	TimeUnit   time.Duration `json:"timeUnit,omitempty"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop cannot be negative"}
	}

	switch c.Type.Canonical() {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}
		if c.Iterations < 0 {
			return &ValidationError{Field: "iterations", Message: "iterations cannot be negative"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		if c.StartVUs < 0 {
			return &ValidationError{Field: "startVUs", Message: "startVUs cannot be negative"}
		}
		for i, stage := range c.Stages {
			if stage.Duration < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration cannot be negative"}
			}
			if stage.Target < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target cannot be negative"}
			}
		}
		if c.TotalDuration() <= 0 {
			return &ValidationError{Field: "stages", Message: "total stage duration must be > 0"}
		}

	case TypeConstantArrivalRate:
		if c.Rate <= 0 {
			return &ValidationError{Field: "rate", Message: "rate must be > 0"}
		}
		if c.TimeUnit < 0 {
			return &ValidationError{Field: "timeUnit", Message: "timeUnit cannot be negative"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}
		if c.PreAllocatedVUs < 0 {
			return &ValidationError{Field: "preAllocatedVUs", Message: "preAllocatedVUs cannot be negative"}
		}
		if c.MaxVUs < 0 {
			return &ValidationError{Field: "maxVUs", Message: "maxVUs cannot be negative"}
		}
		if c.MaxVUs > 0 && c.MaxVUs < c.PreAllocatedVUs {
			return &ValidationError{Field: "maxVUs", Message: "maxVUs must be >= preAllocatedVUs"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// TotalDuration calculates the scheduled duration, excluding graceful stop.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type.Canonical() {
	case TypeConstantVUs, TypeConstantArrivalRate:
		return c.Duration

	case TypeRampingVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	default:
		return 0
	}
}

// gracefulStop returns the configured graceful stop or the default.
func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop > 0 {
		return c.GracefulStop
	}
	return DefaultGracefulStop
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
