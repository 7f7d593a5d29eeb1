package alert

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the alert subsystem.
type Metrics struct {
	EvaluationsTotal prometheus.Counter
	AlertsTotal      *prometheus.CounterVec
	SuppressedTotal  *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns alert metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airsight_alert_evaluations_total",
			Help: "Total incident evaluations by the alert engine.",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsight_alerts_total",
			Help: "Total alerts produced, by priority band.",
		}, []string{"priority"}),
		SuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsight_alerts_suppressed_total",
			Help: "Qualifying alerts suppressed by policy, by reason.",
		}, []string{"reason"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsight_alert_deliveries_total",
			Help: "Channel delivery attempts by channel and outcome.",
		}, []string{"channel", "status"}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.AlertsTotal,
		m.SuppressedTotal,
		m.DeliveriesTotal,
	)

	return m
}
