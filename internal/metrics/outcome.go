package metrics

import (
	"fmt"
	"net/http"
)

// FailClosedPolicy decides how a 503 response, the service's fail-closed
// answer when it cannot guarantee consistency, is classified.
type FailClosedPolicy string

const (
	// FailClosedAsFailure counts 503 as a failed request like any status >= 400.
	FailClosedAsFailure FailClosedPolicy = "failure"

	// FailClosedAsSuccess counts 503 as an acceptable outcome.
	FailClosedAsSuccess FailClosedPolicy = "success"

	// FailClosedExcluded leaves 503 out of the failure rate entirely: it is
	// neither a failure nor part of the denominator.
	FailClosedExcluded FailClosedPolicy = "exclude"
)

// ParseFailClosedPolicy parses a policy name. Empty means failure.
func ParseFailClosedPolicy(s string) (FailClosedPolicy, error) {
	switch p := FailClosedPolicy(s); p {
	case "":
		return FailClosedAsFailure, nil
	case FailClosedAsFailure, FailClosedAsSuccess, FailClosedExcluded:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fail-closed policy %q (want failure, success or exclude)", s)
	}
}

// Outcome is the classification of one request.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeExcluded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Classify maps a status code or transport error to an Outcome.
func (p FailClosedPolicy) Classify(status int, err error) Outcome {
	if err != nil || status == 0 {
		return OutcomeFailed
	}
	if status == http.StatusServiceUnavailable {
		switch p {
		case FailClosedAsSuccess:
			return OutcomeSuccess
		case FailClosedExcluded:
			return OutcomeExcluded
		}
		return OutcomeFailed
	}
	if status >= 400 {
		return OutcomeFailed
	}
	return OutcomeSuccess
}
