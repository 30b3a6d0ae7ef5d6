package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics mirrors engine events as Prometheus series. It
// implements Observer.
type PrometheusMetrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ChecksTotal       *prometheus.CounterVec
	IterationsTotal   prometheus.Counter
	DroppedIterations prometheus.Counter
	ActiveVUs         prometheus.Gauge
	RunPhase          *prometheus.GaugeVec
}

var knownPhases = []Phase{PhaseInit, PhaseRampUp, PhaseSteady, PhaseRampDown, PhaseGracefulStop, PhaseDone}

// NewPrometheusMetrics creates and registers all series on reg, or on the
// default registerer when reg is nil.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletprobe_requests_total",
				Help: "Requests sent by operation, status code and outcome",
			},
			[]string{"operation", "status", "outcome"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletprobe_request_duration_seconds",
				Help:    "Request latency by operation in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletprobe_checks_total",
				Help: "Check outcomes by check name",
			},
			[]string{"check", "result"},
		),

		IterationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "walletprobe_iterations_total",
				Help: "Completed VU iterations",
			},
		),

		DroppedIterations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "walletprobe_dropped_iterations_total",
				Help: "Arrivals dropped because no VU was free at maxVUs",
			},
		),

		ActiveVUs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletprobe_active_vus",
				Help: "Currently active virtual users",
			},
		),

		RunPhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "walletprobe_run_phase",
				Help: "Current run phase (1 if active, 0 otherwise)",
			},
			[]string{"phase"},
		),
	}
}

// ObserveRequest implements Observer.
func (m *PrometheusMetrics) ObserveRequest(operation string, status int, outcome Outcome, latency time.Duration) {
	if operation == "" {
		operation = "other"
	}
	m.RequestsTotal.WithLabelValues(operation, strconv.Itoa(status), outcome.String()).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(latency.Seconds())
}

// ObserveCheck implements Observer.
func (m *PrometheusMetrics) ObserveCheck(name string, passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	m.ChecksTotal.WithLabelValues(name, result).Inc()
}

// ObserveIteration implements Observer.
func (m *PrometheusMetrics) ObserveIteration() {
	m.IterationsTotal.Inc()
}

// ObserveDroppedIteration implements Observer.
func (m *PrometheusMetrics) ObserveDroppedIteration() {
	m.DroppedIterations.Inc()
}

// ObserveActiveVUs implements Observer.
func (m *PrometheusMetrics) ObserveActiveVUs(n int) {
	m.ActiveVUs.Set(float64(n))
}

// ObservePhase implements Observer.
func (m *PrometheusMetrics) ObservePhase(phase Phase) {
	for _, p := range knownPhases {
		if p == phase {
			m.RunPhase.WithLabelValues(string(p)).Set(1)
		} else {
			m.RunPhase.WithLabelValues(string(p)).Set(0)
		}
	}
}

var _ Observer = (*PrometheusMetrics)(nil)
