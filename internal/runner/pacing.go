package runner

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing is the delay a VU sleeps at the end of each iteration.
type Pacing struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Validate checks the pacing bounds.
func (p Pacing) Validate() error {
	switch p.Type {
	case "", PacingNone:
	case PacingConstant:
		if p.Duration < 0 {
			return fmt.Errorf("pacing duration cannot be negative")
		}
	case PacingRandom:
		if p.Min < 0 || p.Max < p.Min {
			return fmt.Errorf("random pacing needs 0 <= min <= max, got min %v max %v", p.Min, p.Max)
		}
	default:
		return fmt.Errorf("unknown pacing type %q", p.Type)
	}
	return nil
}

// Delay returns the next pacing delay.
func (p Pacing) Delay() time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		if p.Max <= p.Min {
			return p.Min
		}
		return p.Min + rand.N(p.Max-p.Min+1)
	default:
		return 0
	}
}
