package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState tracks the current state per endpoint (0 closed, 1 open, 2 half-open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "callguard_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"endpoint"},
	)

	// BreakerTransitions counts state transitions
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"endpoint", "from", "to"},
	)

	// BreakerRejections counts calls refused while the circuit was open
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_breaker_rejections_total",
			Help: "Total number of calls short-circuited by an open breaker",
		},
		[]string{"endpoint"},
	)

	// RetryAttempts counts scheduled retries by failure category
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_retry_attempts_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"category"},
	)

	// RetryDelay tracks the computed wait before each retry
	RetryDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callguard_retry_delay_seconds",
			Help:    "Delay applied before a retry in seconds",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 30, 60, 120},
		},
		[]string{"category"},
	)

	// FailuresClassified counts failures by category and severity
	FailuresClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callguard_failures_total",
			Help: "Total number of classified call failures",
		},
		[]string{"category", "severity"},
	)

	// CallLatency tracks guarded call latency per endpoint
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callguard_call_latency_seconds",
			Help:    "Guarded call latency in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)
)
