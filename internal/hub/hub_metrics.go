package hub

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the broadcast hub.
type Metrics struct {
	Connections  prometheus.Gauge
	MessagesSent *prometheus.CounterVec
	Reaped       prometheus.Counter
}

// NewMetrics registers and returns hub metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airsight_ws_connections",
			Help: "Currently registered websocket connections.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsight_ws_messages_sent_total",
			Help: "Server messages enqueued for delivery, by type.",
		}, []string{"type"}),
		Reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airsight_ws_connections_reaped_total",
			Help: "Connections terminated by the liveness probe.",
		}),
	}

	reg.MustRegister(m.Connections, m.MessagesSent, m.Reaped)
	return m
}
