// Package threshold parses and evaluates pass/fail expressions over run
// metrics, using k6 threshold syntax:
//
//	http_req_failed:   ["rate<0.01"]
//	http_req_duration: ["p(95)<150", "avg<100ms"]
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/walletprobe/internal/metrics"
)

// Metric names accepted in threshold maps.
const (
	HTTPReqDuration   = "http_req_duration"
	HTTPReqFailed     = "http_req_failed"
	HTTPReqs          = "http_reqs"
	HTTPReqFailClosed = "http_req_fail_closed"
	Checks            = "checks"
	Iterations        = "iterations"
	DroppedIterations = "dropped_iterations"
)

// aggregations lists the aggregations each metric supports. "p" stands for
// any percentile.
var aggregations = map[string][]string{
	HTTPReqDuration:   {"avg", "min", "max", "med", "p"},
	HTTPReqFailed:     {"rate"},
	HTTPReqs:          {"count", "rate"},
	HTTPReqFailClosed: {"count", "rate"},
	Checks:            {"rate"},
	Iterations:        {"count", "rate"},
	DroppedIterations: {"count", "rate"},
}

// Metrics returns the supported metric names, sorted.
func Metrics() []string {
	names := make([]string, 0, len(aggregations))
	for name := range aggregations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseError reports an unusable threshold. It is a configuration error
// and is returned before any iteration runs.
type ParseError struct {
	Metric     string
	Expression string
	Reason     string
}

func (e *ParseError) Error() string {
	if e.Expression == "" {
		return fmt.Sprintf("threshold %s: %s", e.Metric, e.Reason)
	}
	return fmt.Sprintf("threshold %s %q: %s", e.Metric, e.Expression, e.Reason)
}

// Expression is one parsed threshold.
type Expression struct {
	Metric      string
	Source      string
	Aggregation string
	// Percentile is set when Aggregation is "p".
	Percentile float64
	Op         string
	// Value is in milliseconds for http_req_duration.
	Value float64
}

var exprRe = regexp.MustCompile(`^\s*(avg|min|max|med|count|rate|p\(\s*[0-9.]+\s*\)|p[0-9]+(?:\.[0-9]+)?)\s*(<=|>=|===|==|!=|<|>)\s*(\S+)\s*$`)

// Parse parses expr for metric.
func Parse(metric, expr string) (Expression, error) {
	allowed, ok := aggregations[metric]
	if !ok {
		return Expression{}, &ParseError{Metric: metric, Reason: fmt.Sprintf("unknown metric (supported: %s)", strings.Join(Metrics(), ", "))}
	}

	m := exprRe.FindStringSubmatch(expr)
	if m == nil {
		return Expression{}, &ParseError{Metric: metric, Expression: expr, Reason: "expected \"<aggregation> <op> <value>\""}
	}

	e := Expression{Metric: metric, Source: strings.TrimSpace(expr), Op: m[2]}
	if e.Op == "===" {
		e.Op = "=="
	}

	agg := m[1]
	if strings.HasPrefix(agg, "p") {
		raw := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(agg, "p"), "("), ")")
		p, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || p <= 0 || p > 100 {
			return Expression{}, &ParseError{Metric: metric, Expression: expr, Reason: fmt.Sprintf("invalid percentile %q", agg)}
		}
		e.Aggregation, e.Percentile = "p", p
	} else {
		e.Aggregation = agg
	}

	if !contains(allowed, e.Aggregation) {
		return Expression{}, &ParseError{Metric: metric, Expression: expr, Reason: fmt.Sprintf("aggregation %q not supported (supported: %s)", agg, strings.Join(allowed, ", "))}
	}

	value, err := parseValue(metric, m[3])
	if err != nil {
		return Expression{}, &ParseError{Metric: metric, Expression: expr, Reason: err.Error()}
	}
	e.Value = value

	return e, nil
}

// parseValue reads a threshold value. Durations accept a unit suffix;
// a bare number means milliseconds.
func parseValue(metric, raw string) (float64, error) {
	if metric == HTTPReqDuration {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return float64(d) / float64(time.Millisecond), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return v, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Set is a validated collection of thresholds.
type Set struct {
	exprs []Expression
}

// NewSet parses every expression. Metrics are processed in sorted order
// so results are stable. All problems are reported, joined.
func NewSet(thresholds map[string][]string) (*Set, error) {
	names := make([]string, 0, len(thresholds))
	for name := range thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		set  Set
		errs []error
	)
	for _, name := range names {
		if len(thresholds[name]) == 0 {
			errs = append(errs, &ParseError{Metric: name, Reason: "no expressions"})
			continue
		}
		for _, raw := range thresholds[name] {
			e, err := Parse(name, raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			set.exprs = append(set.exprs, e)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &set, nil
}

// Len returns the number of expressions.
func (s *Set) Len() int {
	return len(s.exprs)
}

// Expressions returns the parsed expressions.
func (s *Set) Expressions() []Expression {
	out := make([]Expression, len(s.exprs))
	copy(out, s.exprs)
	return out
}

// Source supplies the aggregated values thresholds are evaluated against.
// *metrics.Engine implements it.
type Source interface {
	Snapshot() *metrics.Snapshot
	LatencyQuantile(p float64) time.Duration
}

// Result is the outcome of one expression.
type Result struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Passed     bool    `json:"passed"`
	Actual     float64 `json:"actual"`
	Value      string  `json:"value"`
	Message    string  `json:"message,omitempty"`
	// NoData is set when the metric had no samples to aggregate. Such an
	// expression fails whatever its operator.
	NoData bool `json:"noData,omitempty"`
}

// Evaluate checks every expression against src. The verdict passes only
// if every expression holds; an empty set passes.
func (s *Set) Evaluate(src Source) ([]Result, bool) {
	snapshot := src.Snapshot()
	results := make([]Result, 0, len(s.exprs))
	passed := true

	for _, e := range s.exprs {
		if e.samples(snapshot) == 0 {
			results = append(results, Result{
				Metric:     e.Metric,
				Expression: e.Source,
				Value:      "n/a",
				Message:    fmt.Sprintf("%s %s has no samples", e.Metric, e.label()),
				NoData:     true,
			})
			passed = false
			continue
		}

		actual := e.actual(src, snapshot)
		ok := compare(actual, e.Op, e.Value)
		r := Result{
			Metric:     e.Metric,
			Expression: e.Source,
			Passed:     ok,
			Actual:     actual,
			Value:      e.format(actual),
		}
		if !ok {
			r.Message = fmt.Sprintf("%s %s is %s, want %s %s", e.Metric, e.label(), r.Value, e.Op, e.format(e.Value))
			passed = false
		}
		results = append(results, r)
	}

	return results, passed
}

// samples returns how many observations back the expression's aggregate.
// Counts and per-second rates of counters are meaningful at zero and
// always report one.
func (e Expression) samples(s *metrics.Snapshot) int64 {
	switch e.Metric {
	case HTTPReqDuration:
		return s.Latency.Count
	case HTTPReqFailed:
		return s.TotalRequests - s.ExcludedRequests
	case Checks:
		return s.ChecksPassed + s.ChecksFailed
	case HTTPReqFailClosed:
		if e.Aggregation == "rate" {
			return s.TotalRequests
		}
	}
	return 1
}

func (e Expression) label() string {
	if e.Aggregation == "p" {
		return "p(" + strconv.FormatFloat(e.Percentile, 'f', -1, 64) + ")"
	}
	return e.Aggregation
}

func (e Expression) format(v float64) string {
	switch {
	case e.Metric == HTTPReqDuration:
		return time.Duration(v * float64(time.Millisecond)).Round(time.Microsecond).String()
	case e.Aggregation == "count":
		return strconv.FormatFloat(v, 'f', 0, 64)
	default:
		return strconv.FormatFloat(v, 'f', 4, 64)
	}
}

func (e Expression) actual(src Source, s *metrics.Snapshot) float64 {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

	switch e.Metric {
	case HTTPReqDuration:
		switch e.Aggregation {
		case "avg":
			return ms(s.Latency.Mean)
		case "min":
			return ms(s.Latency.Min)
		case "max":
			return ms(s.Latency.Max)
		case "med":
			return ms(s.Latency.P50)
		case "p":
			return ms(src.LatencyQuantile(e.Percentile))
		}
	case HTTPReqFailed:
		return s.ErrorRate
	case Checks:
		return s.CheckRate
	case HTTPReqFailClosed:
		if e.Aggregation == "count" {
			return float64(s.FailClosedResponses)
		}
		if s.TotalRequests == 0 {
			return 0
		}
		return float64(s.FailClosedResponses) / float64(s.TotalRequests)
	case HTTPReqs:
		return countOrRate(e, s, s.TotalRequests)
	case Iterations:
		return countOrRate(e, s, s.Iterations)
	case DroppedIterations:
		return countOrRate(e, s, s.DroppedIterations)
	}
	return 0
}

func countOrRate(e Expression, s *metrics.Snapshot, n int64) float64 {
	if e.Aggregation == "count" {
		return float64(n)
	}
	return s.Rate(n)
}

func compare(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
