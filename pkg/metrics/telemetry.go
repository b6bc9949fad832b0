package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TelemetryMetrics tracks the telemetry simulator and the drone battery simulation.
type TelemetryMetrics struct {
	RefreshesTotal  *prometheus.CounterVec
	ReadingValue    *prometheus.GaugeVec
	PublishFailures prometheus.Counter
	BatteryLevel    prometheus.Gauge
	Spraying        prometheus.Gauge
	DrainTicksTotal prometheus.Counter
}

// NewTelemetryMetrics creates and registers telemetry metrics.
func NewTelemetryMetrics(namespace string) *TelemetryMetrics {
	m := &TelemetryMetrics{
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "refreshes_total",
				Help:      "Total number of committed telemetry refreshes",
			},
			[]string{"trigger"}, // trigger: auto, manual
		),
		ReadingValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "reading_value",
				Help:      "Latest simulated sensor value",
			},
			[]string{"field"},
		),
		PublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "telemetry",
				Name:      "publish_failures_total",
				Help:      "Total number of readings that could not be published",
			},
		),
		BatteryLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "drone",
				Name:      "battery_level_percent",
				Help:      "Simulated drone battery level",
			},
		),
		Spraying: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "drone",
				Name:      "spraying",
				Help:      "Whether the drone is spraying (1) or idle (0)",
			},
		),
		DrainTicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "drone",
				Name:      "drain_ticks_total",
				Help:      "Total number of battery drain ticks applied",
			},
		),
	}

	MustRegister(
		m.RefreshesTotal,
		m.ReadingValue,
		m.PublishFailures,
		m.BatteryLevel,
		m.Spraying,
		m.DrainTicksTotal,
	)

	return m
}
