package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBaseURL      = "http://localhost:8080"
	DefaultTimeout      = "30s"
	DefaultSecretEnv    = "JWT_SECRET"
	DefaultGracefulStop = "30s"
	DefaultTimeUnit     = "1s"
	DefaultAsset        = "USD"
	DefaultAmount       = "1.00"
	DefaultUserAgent    = "walletprobe/1.0"
)

// LoadConfig loads a run configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Unknown fields are rejected so a misspelt option fails loudly instead
// of silently falling back to its default.
func LoadConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*RunConfig, error) {
	var config RunConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// An empty string parses as zero.
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills every unset option with its default.
func ApplyDefaults(config *RunConfig) {
	if config.Target.BaseURL == "" {
		config.Target.BaseURL = DefaultBaseURL
	}
	if config.Target.Timeout == "" {
		config.Target.Timeout = DefaultTimeout
	}
	if config.Target.UserAgent == "" {
		config.Target.UserAgent = DefaultUserAgent
	}

	if config.Auth.SecretEnv == "" {
		config.Auth.SecretEnv = DefaultSecretEnv
	}

	applyScenarioDefaults(&config.Scenario)
	applyWorkloadDefaults(config.Name, &config.Workload)
}

// applyScenarioDefaults applies default values to the scenario.
func applyScenarioDefaults(sc *ScenarioConfig) {
	if sc.Executor == "" {
		sc.Executor = "constant-vus"
	}
	if sc.GracefulStop == "" {
		sc.GracefulStop = DefaultGracefulStop
	}

	switch sc.Executor {
	case "constant-vus", "constant-concurrency":
		if sc.VUs == 0 {
			sc.VUs = 1
		}
	case "constant-arrival-rate":
		if sc.TimeUnit == "" {
			sc.TimeUnit = DefaultTimeUnit
		}
		if sc.PreAllocatedVUs == 0 {
			sc.PreAllocatedVUs = 1
		}
		if sc.MaxVUs == 0 {
			sc.MaxVUs = sc.PreAllocatedVUs
		}
	}
}

// applyWorkloadDefaults applies default values to the workload. The
// wallet ranges default to the seeded baseline pools.
func applyWorkloadDefaults(name string, w *WorkloadConfig) {
	if w.Tag == "" {
		w.Tag = name
	}
	if w.Tag == "" {
		w.Tag = "walletprobe"
	}
	if w.Asset == "" {
		w.Asset = DefaultAsset
	}
	if w.Amount == "" {
		w.Amount = DefaultAmount
	}
	if w.Source.Size == 0 && w.Source.Start == 0 {
		w.Source.Start, w.Source.Size = 1, 500
	}
	if w.Destination.Size == 0 && w.Destination.Start == 0 {
		w.Destination.Start, w.Destination.Size = 1000, 500
	}
	if w.TransferRatio == nil {
		ratio := 1.0
		w.TransferRatio = &ratio
	}
	if w.Scopes.Transfer == "" {
		w.Scopes.Transfer = "wallet:write wallet:read"
	}
	if w.Scopes.ReadBalance == "" {
		w.Scopes.ReadBalance = "wallet:read"
	}
	if w.Scopes.CreateWallet == "" {
		w.Scopes.CreateWallet = "wallet:write wallet:read wallet:admin"
	}
	if w.FailClosed == "" {
		w.FailClosed = "failure"
	}
}
