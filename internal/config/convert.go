package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/identity"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/runner"
	"github.com/wesleyorama2/walletprobe/internal/transport"
	"github.com/wesleyorama2/walletprobe/internal/workload"
)

// ToExecutorConfig converts the scenario to an executor.Config, parsing
// every duration. A bad duration is returned as a *ValidationError naming
// its field.
func (c *RunConfig) ToExecutorConfig() (*executor.Config, error) {
	sc := &c.Scenario
	cfg := &executor.Config{
		Name:            c.Name,
		Type:            executor.Type(sc.Executor),
		VUs:             sc.VUs,
		Iterations:      sc.Iterations,
		Rate:            sc.Rate,
		PreAllocatedVUs: sc.PreAllocatedVUs,
		MaxVUs:          sc.MaxVUs,
		StartVUs:        sc.StartVUs,
	}

	var err error
	if cfg.Duration, err = parseField("scenario.duration", sc.Duration); err != nil {
		return nil, err
	}
	if cfg.TimeUnit, err = parseField("scenario.timeUnit", sc.TimeUnit); err != nil {
		return nil, err
	}
	if cfg.GracefulStop, err = parseField("scenario.gracefulStop", sc.GracefulStop); err != nil {
		return nil, err
	}

	for i, stage := range sc.Stages {
		field := fmt.Sprintf("scenario.stages[%d].duration", i)
		if stage.Duration == "" {
			return nil, &ValidationError{Field: field, Message: "duration is required"}
		}
		d, err := parseField(field, stage.Duration)
		if err != nil {
			return nil, err
		}
		cfg.Stages = append(cfg.Stages, executor.Stage{
			Duration: d,
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	return cfg, nil
}

// ToPacing converts the scenario's pacing to a runner.Pacing.
func (c *RunConfig) ToPacing() (runner.Pacing, error) {
	p := c.Scenario.Pacing
	if p == nil {
		return runner.Pacing{Type: runner.PacingNone}, nil
	}

	pacing := runner.Pacing{Type: runner.PacingType(p.Type)}
	var err error
	if pacing.Duration, err = parseField("scenario.pacing.duration", p.Duration); err != nil {
		return runner.Pacing{}, err
	}
	if pacing.Min, err = parseField("scenario.pacing.min", p.Min); err != nil {
		return runner.Pacing{}, err
	}
	if pacing.Max, err = parseField("scenario.pacing.max", p.Max); err != nil {
		return runner.Pacing{}, err
	}

	if err := pacing.Validate(); err != nil {
		return runner.Pacing{}, err
	}
	return pacing, nil
}

// ToWorkload converts the workload section to a workload.Config.
func (c *RunConfig) ToWorkload() workload.Config {
	w := &c.Workload
	ratio := 1.0
	if w.TransferRatio != nil {
		ratio = *w.TransferRatio
	}
	return workload.Config{
		Tag:           w.Tag,
		RunID:         w.RunID,
		Asset:         w.Asset,
		Amount:        w.Amount,
		Source:        w.Source,
		Destination:   w.Destination,
		TransferRatio: ratio,
		CreateWallets: w.CreateWallets,
		Scopes:        w.Scopes,
	}
}

// ToAuth converts the auth section to an identity.TokenConfig. The secret
// comes from auth.secret, or else from the environment variable named by
// auth.secretEnv.
func (c *RunConfig) ToAuth() (identity.TokenConfig, error) {
	a := &c.Auth

	secret := a.Secret
	if secret == "" && a.SecretEnv != "" {
		secret = os.Getenv(a.SecretEnv)
	}
	if secret == "" {
		env := a.SecretEnv
		if env == "" {
			env = DefaultSecretEnv
		}
		return identity.TokenConfig{}, &ValidationError{
			Field:   "auth.secret",
			Message: fmt.Sprintf("signing secret is required (set auth.secret or $%s)", env),
		}
	}

	ttl, err := parseField("auth.ttl", a.TTL)
	if err != nil {
		return identity.TokenConfig{}, err
	}
	refresh, err := parseField("auth.refreshBefore", a.RefreshBefore)
	if err != nil {
		return identity.TokenConfig{}, err
	}

	return identity.TokenConfig{
		Secret:        []byte(secret),
		Subject:       a.Subject,
		Audience:      a.Audience,
		TTL:           ttl,
		RefreshBefore: refresh,
	}, nil
}

// ToHTTP converts the target section to a transport.HTTPConfig.
func (c *RunConfig) ToHTTP() (transport.HTTPConfig, error) {
	t := &c.Target
	cfg := transport.DefaultHTTPConfig()

	timeout, err := parseField("target.timeout", t.Timeout)
	if err != nil {
		return cfg, err
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if t.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = t.MaxIdleConnsPerHost
	}
	cfg.MaxConnsPerHost = t.MaxConnsPerHost
	cfg.InsecureSkipVerify = t.InsecureSkipVerify

	cfg.Headers = make(map[string]string, len(t.Headers)+1)
	if t.UserAgent != "" {
		cfg.Headers["User-Agent"] = t.UserAgent
	}
	for k, v := range t.Headers {
		cfg.Headers[k] = v
	}
	return cfg, nil
}

// ToFailClosedPolicy parses workload.failClosed.
func (c *RunConfig) ToFailClosedPolicy() (metrics.FailClosedPolicy, error) {
	return metrics.ParseFailClosedPolicy(c.Workload.FailClosed)
}

func parseField(field, value string) (time.Duration, error) {
	d, err := ParseDurationString(value)
	if err != nil {
		return 0, &ValidationError{Field: field, Message: err.Error()}
	}
	return d, nil
}
