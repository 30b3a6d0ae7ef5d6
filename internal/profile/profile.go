// Package profile holds the built-in run profiles.
package profile

import (
	"fmt"
	"sort"

	"github.com/wesleyorama2/walletprobe/internal/check"
	"github.com/wesleyorama2/walletprobe/internal/config"
	"github.com/wesleyorama2/walletprobe/internal/workload"
)

// Built-in profile names.
const (
	Baseline   = "baseline"
	Resiliency = "resiliency"
	Smoke      = "smoke"
	Soak       = "soak"
	Spike      = "spike"
)

var builtins = map[string]func() *config.RunConfig{
	Baseline:   baseline,
	Resiliency: resiliency,
	Smoke:      smoke,
	Soak:       soak,
	Spike:      spike,
}

// Names returns the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a fresh copy of the named profile with defaults applied.
// Callers may modify it freely.
func Get(name string) (*config.RunConfig, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %v)", name, Names())
	}
	cfg := build()
	config.ApplyDefaults(cfg)
	return cfg, nil
}

func ratio(r float64) *float64 { return &r }

// baseline holds 1000 transfers/s for five minutes.
func baseline() *config.RunConfig {
	return &config.RunConfig{
		Name:        Baseline,
		Description: "Steady-state transfer throughput at a fixed arrival rate",
		Scenario: config.ScenarioConfig{
			Executor:        "constant-arrival-rate",
			Rate:            1000,
			TimeUnit:        "1s",
			Duration:        "5m",
			PreAllocatedVUs: 200,
			MaxVUs:          1200,
		},
		Workload: config.WorkloadConfig{
			Tag:           "base",
			Amount:        "0.50",
			Source:        workload.WalletRange{Start: 1, Size: 500},
			Destination:   workload.WalletRange{Start: 1000, Size: 500},
			TransferRatio: ratio(1),
			Scopes:        workload.Scopes{Transfer: "wallet:write wallet:read"},
		},
		Checks: []check.Check{
			{Name: "status 200", Operation: workload.KindTransfer, Status: []int{200}},
			{Name: "transaction body", Operation: workload.KindTransfer, Schema: "transaction"},
		},
		Thresholds: map[string][]string{
			"http_req_failed":   {"rate<0.01"},
			"http_req_duration": {"p(95)<150"},
		},
	}
}

// resiliency keeps 100 VUs transferring through a partition window. The
// service is expected to either commit or fail closed with 503.
func resiliency() *config.RunConfig {
	return &config.RunConfig{
		Name:        Resiliency,
		Description: "Transfers during a partition window; every response must be committed or fail-closed",
		Scenario: config.ScenarioConfig{
			Executor: "constant-vus",
			VUs:      100,
			Duration: "6m",
		},
		Workload: config.WorkloadConfig{
			Tag:           "res",
			Amount:        "0.10",
			Source:        workload.WalletRange{Start: 1, Size: 200},
			Destination:   workload.WalletRange{Start: 1000, Size: 200},
			TransferRatio: ratio(1),
			Scopes:        workload.Scopes{Transfer: "wallet:write"},
		},
		Checks: []check.Check{
			{Name: "either committed or fail-closed", Operation: workload.KindTransfer, Status: []int{200, 503}},
		},
		Thresholds: map[string][]string{
			"http_req_failed": {"rate<0.15"},
		},
	}
}

// smoke creates a wallet pair per VU and runs 20 transfers across 2 VUs.
func smoke() *config.RunConfig {
	return &config.RunConfig{
		Name:        Smoke,
		Description: "Two VUs create their wallets and run 20 transfers",
		Scenario: config.ScenarioConfig{
			Executor:   "constant-vus",
			VUs:        2,
			Iterations: 20,
			Duration:   "10m",
			Pacing:     &config.PacingConfig{Type: "constant", Duration: "100ms"},
		},
		Workload: config.WorkloadConfig{
			Tag:           "smoke",
			Amount:        "1.00",
			Source:        workload.WalletRange{Start: 1001, Size: 1000, Selector: workload.SelectByVU},
			Destination:   workload.WalletRange{Start: 2001, Size: 1000, Selector: workload.SelectByVU},
			TransferRatio: ratio(1),
			CreateWallets: true,
			Scopes: workload.Scopes{
				CreateWallet: "wallet:write wallet:read wallet:admin",
				Transfer:     "wallet:write wallet:read",
			},
		},
		Checks: []check.Check{
			{Name: "transfer success", Operation: workload.KindTransfer, Status: []int{200}},
		},
		Thresholds: map[string][]string{
			"http_req_failed":   {"rate<0.01"},
			"http_req_duration": {"p(95)<150"},
		},
	}
}

// soak runs a 20/80 transfer/balance-read mix at 300 iterations/s for two
// hours.
func soak() *config.RunConfig {
	return &config.RunConfig{
		Name:        Soak,
		Description: "Two-hour mixed transfer and balance-read soak",
		Scenario: config.ScenarioConfig{
			Executor:        "constant-arrival-rate",
			Rate:            300,
			TimeUnit:        "1s",
			Duration:        "2h",
			PreAllocatedVUs: 200,
			MaxVUs:          500,
			Pacing:          &config.PacingConfig{Type: "constant", Duration: "10ms"},
		},
		Workload: config.WorkloadConfig{
			Tag:           "soak",
			Amount:        "0.05",
			Source:        workload.WalletRange{Start: 1, Size: 500},
			Destination:   workload.WalletRange{Start: 1000, Size: 500},
			TransferRatio: ratio(0.2),
			Scopes: workload.Scopes{
				Transfer:    "wallet:write wallet:read",
				ReadBalance: "wallet:read",
			},
		},
		Checks: []check.Check{
			{Name: "transfer ok", Operation: workload.KindTransfer, Status: []int{200}},
			{Name: "read ok", Operation: workload.KindReadBalance, Status: []int{200, 404}},
		},
		Thresholds: map[string][]string{
			"http_req_failed":   {"rate<0.02"},
			"http_req_duration": {"p(95)<170"},
		},
	}
}

// spike ramps to 1200 VUs, holds, and falls back. Each VU sticks to one
// wallet pair.
func spike() *config.RunConfig {
	return &config.RunConfig{
		Name:        Spike,
		Description: "Ramp to 1200 VUs, hold, and recover",
		Scenario: config.ScenarioConfig{
			Executor: "ramping-vus",
			StartVUs: 0,
			Stages: []config.StageConfig{
				{Duration: "1m", Target: 100, Name: "warm-up"},
				{Duration: "2m", Target: 1200, Name: "spike"},
				{Duration: "2m", Target: 1200, Name: "hold"},
				{Duration: "1m", Target: 100, Name: "recover"},
			},
			Pacing: &config.PacingConfig{Type: "constant", Duration: "10ms"},
		},
		Workload: config.WorkloadConfig{
			Tag:           "spike",
			Amount:        "0.25",
			Source:        workload.WalletRange{Start: 1, Size: 300, Selector: workload.SelectByVU},
			Destination:   workload.WalletRange{Start: 2000, Size: 300, Selector: workload.SelectByVU},
			TransferRatio: ratio(1),
			Scopes:        workload.Scopes{Transfer: "wallet:write"},
		},
		Checks: []check.Check{
			{Name: "spike status", Operation: workload.KindTransfer, Status: []int{200}},
		},
		Thresholds: map[string][]string{
			"http_req_failed":   {"rate<0.02"},
			"http_req_duration": {"p(95)<180"},
		},
	}
}
