package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wesleyorama2/walletprobe/internal/check"
	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the fields that failed validation, in report order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

// Validate validates the entire run configuration. Call ApplyDefaults
// first; Validate does not fill anything in.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(&c.Target, errs)
	validateAuth(&c.Auth, errs)
	validateScenario(c, errs)
	validateWorkload(c, errs)
	validateChecks(c.Checks, errs)
	validateThresholds(c.Thresholds, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateTarget validates the endpoint settings.
func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	if t.BaseURL == "" {
		errs.Add("target.baseUrl", "baseUrl is required")
	} else if u, err := url.Parse(t.BaseURL); err != nil {
		errs.Add("target.baseUrl", fmt.Sprintf("invalid URL: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("target.baseUrl", "scheme must be http or https")
	}

	if d, err := ParseDurationString(t.Timeout); err != nil {
		errs.Add("target.timeout", fmt.Sprintf("invalid timeout: %v", err))
	} else if d < 0 {
		errs.Add("target.timeout", "timeout cannot be negative")
	}

	if t.MaxConnsPerHost < 0 {
		errs.Add("target.maxConnsPerHost", "cannot be negative")
	}
	if t.MaxIdleConnsPerHost < 0 {
		errs.Add("target.maxIdleConnsPerHost", "cannot be negative")
	}
}

// validateAuth validates token settings. A missing secret is reported by
// ToAuth, since it may legitimately arrive through the environment later.
func validateAuth(a *AuthConfig, errs *ValidationErrors) {
	ttl, err := ParseDurationString(a.TTL)
	if err != nil {
		errs.Add("auth.ttl", fmt.Sprintf("invalid ttl: %v", err))
	} else if ttl < 0 {
		errs.Add("auth.ttl", "ttl cannot be negative")
	}

	refresh, err := ParseDurationString(a.RefreshBefore)
	if err != nil {
		errs.Add("auth.refreshBefore", fmt.Sprintf("invalid refreshBefore: %v", err))
	} else if refresh < 0 {
		errs.Add("auth.refreshBefore", "refreshBefore cannot be negative")
	} else if ttl > 0 && refresh >= ttl {
		errs.Add("auth.refreshBefore", "refreshBefore must be shorter than ttl")
	}
}

// validateScenario validates the traffic shape through the executor's own
// validation, so both agree on what is runnable.
func validateScenario(c *RunConfig, errs *ValidationErrors) {
	if c.Scenario.Executor != "" && !executor.IsValidExecutorType(c.Scenario.Executor) {
		supported := make([]string, 0, 3)
		for _, t := range executor.GetSupportedExecutors() {
			supported = append(supported, string(t))
		}
		errs.Add("scenario.executor", fmt.Sprintf("unknown executor type: %s (supported: %s)",
			c.Scenario.Executor, strings.Join(supported, ", ")))
		return
	}

	cfg, err := c.ToExecutorConfig()
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			errs.Errors = append(errs.Errors, verr)
		} else {
			errs.Add("scenario", err.Error())
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		var verr *executor.ValidationError
		if errors.As(err, &verr) {
			field := verr.Field
			if field == "type" {
				field = "executor"
			}
			errs.Add("scenario."+field, verr.Message)
		} else {
			errs.Add("scenario", err.Error())
		}
	}

	if _, err := c.ToPacing(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			errs.Errors = append(errs.Errors, verr)
		} else {
			errs.Add("scenario.pacing", err.Error())
		}
	}
}

// validateWorkload validates the iteration content.
func validateWorkload(c *RunConfig, errs *ValidationErrors) {
	w := c.ToWorkload()
	if err := w.Validate(); err != nil {
		errs.Add("workload", err.Error())
	}

	if _, err := metrics.ParseFailClosedPolicy(c.Workload.FailClosed); err != nil {
		errs.Add("workload.failClosed", err.Error())
	}
}

// validateChecks compiles the checks the way the run will.
func validateChecks(checks []check.Check, errs *ValidationErrors) {
	if _, err := check.NewVerifier(checks); err != nil {
		errs.Add("checks", err.Error())
	}
}

// validateThresholds parses every expression, reporting each bad one at
// its own field path. Metrics are visited in sorted order.
func validateThresholds(thresholds map[string][]string, errs *ValidationErrors) {
	metricNames := make([]string, 0, len(thresholds))
	for name := range thresholds {
		metricNames = append(metricNames, name)
	}
	sort.Strings(metricNames)

	for _, name := range metricNames {
		exprs := thresholds[name]
		if len(exprs) == 0 {
			errs.Add("thresholds."+name, "at least one expression is required")
		}
		for i, expr := range exprs {
			if _, err := threshold.Parse(name, expr); err != nil {
				var perr *threshold.ParseError
				msg := err.Error()
				if errors.As(err, &perr) {
					msg = perr.Reason
				}
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", name, i), msg)
			}
		}
	}
}
