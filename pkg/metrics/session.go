package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks login, signup and logout activity.
type SessionMetrics struct {
	AttemptsTotal     *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	InFlight          prometheus.Gauge
	LogoutsTotal      prometheus.Counter
	StoreErrors       *prometheus.CounterVec
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(namespace string) *SessionMetrics {
	m := &SessionMetrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "attempts_total",
				Help:      "Total number of login and signup attempts",
			},
			[]string{"operation", "outcome"}, // outcome: success, invalid_credentials, error
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "operation_duration_seconds",
				Help:      "Duration of login and signup operations including simulated latency",
				Buckets:   []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 5},
			},
			[]string{"operation"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "operations_in_flight",
				Help:      "Number of login and signup operations currently outstanding",
			},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "logouts_total",
				Help:      "Total number of logouts",
			},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "identity",
				Name:      "store_errors_total",
				Help:      "Total number of identity snapshot failures",
			},
			[]string{"reason"}, // reason: corrupt, read, write, delete
		),
	}

	MustRegister(
		m.AttemptsTotal,
		m.OperationDuration,
		m.InFlight,
		m.LogoutsTotal,
		m.StoreErrors,
	)

	return m
}
