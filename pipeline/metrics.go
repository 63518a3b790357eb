package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the orchestrator's Prometheus collectors
type Metrics struct {
	invocations *prometheus.CounterVec
	dropped     prometheus.Counter
	stages      *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenspark_invocations_total",
				Help: "Finished invocations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenspark_triggers_dropped_total",
				Help: "Triggers ignored because an invocation was already running",
			},
		),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenspark_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tokenspark_invocation_in_flight",
				Help: "1 while an invocation is running",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.invocations, m.dropped, m.stages, m.inFlight)
	}
	return m
}

func (m *Metrics) observeStage(s Stage, d time.Duration) {
	m.stages.WithLabelValues(s.String()).Observe(d.Seconds())
}

func (m *Metrics) finished(mode Mode, outcome string) {
	m.invocations.WithLabelValues(mode.String(), outcome).Inc()
}
