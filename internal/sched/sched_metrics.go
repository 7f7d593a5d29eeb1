package sched

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the scheduler.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	CandidatesTotal *prometheus.CounterVec
	EvictedTotal    prometheus.Counter
}

// NewMetrics registers and returns scheduler metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsight_sched_cycles_total",
			Help: "Completed ingestion cycles, by kind.",
		}, []string{"kind"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airsight_sched_cycle_duration_seconds",
			Help:    "Ingestion cycle wall time, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		CandidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airsight_sched_candidates_total",
			Help: "Candidates fetched across all sources, by cycle kind.",
		}, []string{"kind"}),
		EvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airsight_sched_incidents_evicted_total",
			Help: "Incidents removed by retention cleanup.",
		}),
	}

	reg.MustRegister(m.CyclesTotal, m.CycleDuration, m.CandidatesTotal, m.EvictedTotal)
	return m
}
