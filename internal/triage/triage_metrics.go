package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	PassesTotal    prometheus.Counter
	PassDuration   prometheus.Histogram
	PassItems      prometheus.Histogram
	DecisionsTotal *prometheus.CounterVec
	OverLimit      *prometheus.GaugeVec
	SubmitsTotal   *prometheus.CounterVec
	ConfirmsTotal  *prometheus.CounterVec
	TasksCreated   prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_triage_passes_total",
			Help: "Total triage passes completed.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_triage_pass_duration_seconds",
			Help:    "Duration of triage passes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		}),
		PassItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_triage_pass_items",
			Help:    "Backlog items per triage pass.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_triage_decisions_total",
			Help: "Total item decisions by kind.",
		}, []string{"kind"}),
		OverLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sift_priority_over_limit",
			Help: "1 when the priority level had no headroom after the latest pass.",
		}, []string{"level"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_submits_total",
			Help: "Total backlog submissions by result.",
		}, []string{"result"}),
		ConfirmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_confirms_total",
			Help: "Total run confirmations by result.",
		}, []string{"result"}),
		TasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_tasks_created_total",
			Help: "Total tasks materialized from confirmed runs.",
		}),
	}

	reg.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.PassItems,
		m.DecisionsTotal,
		m.OverLimit,
		m.SubmitsTotal,
		m.ConfirmsTotal,
		m.TasksCreated,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnItem: func(kind Kind) {
			m.DecisionsTotal.WithLabelValues(string(kind)).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			m.PassesTotal.Inc()
			m.PassDuration.Observe(e.Duration)
			m.PassItems.Observe(float64(e.Items))
			m.OverLimit.Reset()
			for _, level := range e.OverLimit {
				m.OverLimit.WithLabelValues(level).Set(1)
			}
		},
	}
}

func (m *Metrics) submit(result string) {
	if m != nil {
		m.SubmitsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) confirm(result string, created int) {
	if m != nil {
		m.ConfirmsTotal.WithLabelValues(result).Inc()
		m.TasksCreated.Add(float64(created))
	}
}
