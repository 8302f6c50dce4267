package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, gauges, and histograms for the
// rain-warning monitor.
type Metrics struct {
	Evaluations             *prometheus.CounterVec // labels: trigger={timer,state_change}
	EvaluationErrors        prometheus.Counter
	RainDetected            prometheus.Counter
	NotificationsSent       prometheus.Counter
	NotificationsSuppressed prometheus.Counter
	MonitorRunning          prometheus.Gauge
	LastNotificationTime    prometheus.Gauge

	ForecastPoints prometheus.Histogram

	// Home Assistant API metrics.
	HassRequestDuration *prometheus.HistogramVec // labels: op={get_state,notify}
}

// NewMetrics creates and registers all monitor metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Evaluations,
		m.EvaluationErrors,
		m.RainDetected,
		m.NotificationsSent,
		m.NotificationsSuppressed,
		m.MonitorRunning,
		m.LastNotificationTime,
		m.ForecastPoints,
		m.HassRequestDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "evaluations_total",
			Help:      "Total evaluation runs by trigger source.",
		}, []string{"trigger"}),
		EvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "evaluation_errors_total",
			Help:      "Total evaluations that failed with an unexpected error.",
		}),
		RainDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "rain_detected_total",
			Help:      "Total evaluations that found rain inside the look-ahead window.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "notifications_sent_total",
			Help:      "Total warning notifications dispatched.",
		}),
		NotificationsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "notifications_suppressed_total",
			Help:      "Total qualifying evaluations suppressed by the cooldown.",
		}),
		MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainwatch",
			Name:      "monitor_running",
			Help:      "1 when the monitor loop is active, 0 when shut down.",
		}),
		LastNotificationTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainwatch",
			Name:      "last_notification_timestamp_seconds",
			Help:      "Unix timestamp of the last dispatched warning.",
		}),
		ForecastPoints: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainwatch",
			Name:      "forecast_points",
			Help:      "Number of points per parsed nowcast payload.",
			Buckets:   []float64{1, 5, 10, 15, 20, 30, 50},
		}),
		HassRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rainwatch",
			Name:      "hass_request_duration_seconds",
			Help:      "Home Assistant API request duration by operation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
	}
}
