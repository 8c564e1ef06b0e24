// Package metrics exports Prometheus collectors for the judge: HTTP traffic,
// container runs, grading verdicts, and cache effectiveness.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	RunsInFlight   prometheus.Gauge
	RunTimeouts    prometheus.Counter
	GradesTotal    *prometheus.CounterVec
	TestCasesTotal *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being processed",
		},
	)

	m.RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Container runs by language and outcome",
		},
		[]string{"language", "outcome"},
	)

	m.RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "judge",
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock container run duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language"},
	)

	m.RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "judge",
			Subsystem: "runner",
			Name:      "runs_in_flight",
			Help:      "Containers currently executing",
		},
	)

	m.RunTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "runner",
			Name:      "run_timeouts_total",
			Help:      "Runs killed at the per-test deadline",
		},
	)

	m.GradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "grader",
			Name:      "grades_total",
			Help:      "Graded submissions by verdict",
		},
		[]string{"verdict"},
	)

	m.TestCasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "grader",
			Name:      "test_cases_total",
			Help:      "Individual test case verdicts",
		},
		[]string{"verdict"},
	)

	m.CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by key class",
		},
		[]string{"key"},
	)

	m.CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "judge",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by key class",
		},
		[]string{"key"},
	)

	return m
}

// RecordRun records one container run.
func (m *Metrics) RecordRun(language, outcome string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(language, outcome).Inc()
	m.RunDuration.WithLabelValues(language).Observe(duration.Seconds())
	if outcome == "timeout" {
		m.RunTimeouts.Inc()
	}
}

// RecordGrade records a graded submission and its per-case verdicts.
func (m *Metrics) RecordGrade(passed bool, casesPassed, casesFailed int) {
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	m.GradesTotal.WithLabelValues(verdict).Inc()
	m.TestCasesTotal.WithLabelValues("passed").Add(float64(casesPassed))
	m.TestCasesTotal.WithLabelValues("failed").Add(float64(casesFailed))
}
