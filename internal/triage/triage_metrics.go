package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	IngestsTotal      *prometheus.CounterVec
	ClassifyDuration  *prometheus.HistogramVec
	ClassifyTotal     *prometheus.CounterVec
	LLMCallsTotal     *prometheus.CounterVec
	LLMDuration       prometheus.Histogram
	CorrectionsTotal  *prometheus.CounterVec
	EscalationsTotal  prometheus.Counter
	GridRequestsTotal prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docbox_ingests_total",
			Help: "Total messages ingested by assigned zone and classification method.",
		}, []string{"zone", "method"}),
		ClassifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docbox_classify_duration_seconds",
			Help:    "Duration of classifications in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}, []string{"method"}),
		ClassifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docbox_classifications_total",
			Help: "Total classifications by path taken and zone.",
		}, []string{"method", "zone"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docbox_llm_calls_total",
			Help: "Total reasoning provider calls by outcome.",
		}, []string{"outcome"}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docbox_llm_call_duration_seconds",
			Help:    "Duration of individual reasoning provider calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}),
		CorrectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docbox_corrections_total",
			Help: "Total user corrections by old and new zone.",
		}, []string{"old_zone", "new_zone"}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docbox_escalations_total",
			Help: "Total manual escalations.",
		}),
		GridRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docbox_grid_requests_total",
			Help: "Total triage grid queries.",
		}),
	}

	reg.MustRegister(
		m.IngestsTotal,
		m.ClassifyDuration,
		m.ClassifyTotal,
		m.LLMCallsTotal,
		m.LLMDuration,
		m.CorrectionsTotal,
		m.EscalationsTotal,
		m.GridRequestsTotal,
	)

	return m
}

// Hooks returns ClassifierHooks that increment the corresponding metrics.
func (m *Metrics) Hooks() ClassifierHooks {
	return ClassifierHooks{
		OnClassify: func(method Method, zone Zone, duration float64) {
			m.ClassifyTotal.WithLabelValues(string(method), string(zone)).Inc()
			m.ClassifyDuration.WithLabelValues(string(method)).Observe(duration)
		},
		OnProviderCall: func(ok bool, duration float64) {
			outcome := "success"
			if !ok {
				outcome = "error"
			}
			m.LLMCallsTotal.WithLabelValues(outcome).Inc()
			m.LLMDuration.Observe(duration)
		},
	}
}
