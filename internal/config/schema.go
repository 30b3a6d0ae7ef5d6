// Package config loads and validates run configurations.
package config

import (
	"github.com/wesleyorama2/walletprobe/internal/check"
	"github.com/wesleyorama2/walletprobe/internal/workload"
)

// RunConfig is the root configuration for one run: where to send traffic,
// how to authenticate, the traffic shape, what each iteration does, and
// the pass/fail criteria.
//
// Example YAML:
//
//	name: baseline
//	target:
//	  baseUrl: http://localhost:8080
//	scenario:
//	  executor: constant-arrival-rate
//	  rate: 1000
//	  timeUnit: 1s
//	  duration: 5m
//	  preAllocatedVUs: 200
//	  maxVUs: 1200
//	workload:
//	  tag: base
//	  amount: "0.50"
//	  source: {start: 1, size: 500}
//	  destination: {start: 1000, size: 500}
//	checks:
//	  - name: status 200
//	    operation: transfer
//	    status: [200]
//	thresholds:
//	  http_req_failed: ["rate<0.01"]
//	  http_req_duration: ["p(95)<150"]
type RunConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Target   TargetConfig   `json:"target" yaml:"target"`
	Auth     AuthConfig     `json:"auth,omitempty" yaml:"auth,omitempty"`
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`
	Workload WorkloadConfig `json:"workload" yaml:"workload"`

	// Checks are named response predicates
	Checks []check.Check `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Thresholds map a metric to k6-style expressions, e.g.
	// http_req_duration: ["p(95)<150"]
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// TargetConfig describes the wallet service endpoint and client settings.
type TargetConfig struct {
	// BaseURL is prefixed to every request path
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	// Timeout is the per-request timeout (e.g., "10s")
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnsPerHost limits connections per host (0 = unlimited)
	MaxConnsPerHost int `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is sent with every request
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are added to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// AuthConfig controls bearer token minting.
type AuthConfig struct {
	// Secret is the HS256 signing key. When empty it is read from the
	// environment variable named by SecretEnv.
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`

	// SecretEnv names the environment variable holding the secret
	// (default JWT_SECRET)
	SecretEnv string `json:"secretEnv,omitempty" yaml:"secretEnv,omitempty"`

	Subject  string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty"`

	// TTL is the token lifetime (e.g., "1h")
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	// RefreshBefore re-mints a cached token this long before it expires
	RefreshBefore string `json:"refreshBefore,omitempty" yaml:"refreshBefore,omitempty"`
}

// ScenarioConfig defines the traffic shape.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy
	// Options: "constant-arrival-rate", "constant-vus", "ramping-vus"
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users (constant-vus)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (e.g., "30s", "2m", "1h")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations is a shared iteration budget (constant-vus)
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// Rate is iterations per TimeUnit (constant-arrival-rate)
	Rate     float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	TimeUnit string  `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`

	// PreAllocatedVUs and MaxVUs bound the arrival-rate VU pool
	PreAllocatedVUs int `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// StartVUs and Stages drive ramping-vus
	StartVUs int           `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop is how long to wait for iterations to finish
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Pacing controls time between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// StageConfig defines a single stage in a ramping executor.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min and Max bound random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// WorkloadConfig describes what each iteration sends.
type WorkloadConfig struct {
	// Tag prefixes idempotency keys (e.g., "base" gives "base-<vu>-<iter>")
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`

	// RunID is folded into idempotency keys when set
	RunID string `json:"runId,omitempty" yaml:"runId,omitempty"`

	Asset  string `json:"asset,omitempty" yaml:"asset,omitempty"`
	Amount string `json:"amount,omitempty" yaml:"amount,omitempty"`

	Source      workload.WalletRange `json:"source" yaml:"source"`
	Destination workload.WalletRange `json:"destination" yaml:"destination"`

	// TransferRatio is the share of iterations that transfer; the rest
	// read a balance. Unset means every iteration transfers.
	TransferRatio *float64 `json:"transferRatio,omitempty" yaml:"transferRatio,omitempty"`

	// CreateWallets creates both wallets at the start of each iteration
	CreateWallets bool `json:"createWallets,omitempty" yaml:"createWallets,omitempty"`

	Scopes workload.Scopes `json:"scopes,omitempty" yaml:"scopes,omitempty"`

	// FailClosed decides how 503 responses count: "failure" (default),
	// "success" or "exclude"
	FailClosed string `json:"failClosed,omitempty" yaml:"failClosed,omitempty"`
}
