package execution

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scheduler's Prometheus collectors.
type Metrics struct {
	points          *prometheus.CounterVec
	triggers        *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
	actors          prometheus.Gauge
	flushes         *prometheus.CounterVec
	suppressedLogs  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rules",
			Subsystem: "execution",
			Name:      "points_total",
			Help:      "Telemetry points processed by outcome",
		}, []string{"outcome"}),

		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rules",
			Subsystem: "execution",
			Name:      "triggers_total",
			Help:      "Rule instance triggers by template and outcome",
		}, []string{"template", "outcome"}),

		triggerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rules",
			Subsystem: "execution",
			Name:      "trigger_duration_seconds",
			Help:      "Time spent in one template trigger",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}, []string{"template"}),

		actors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rules",
			Subsystem: "execution",
			Name:      "actors",
			Help:      "Actors held in the state store",
		}),

		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rules",
			Subsystem: "sink",
			Name:      "flushed_actors_total",
			Help:      "Actor states written to the output sink by outcome",
		}, []string{"outcome"}),

		suppressedLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rules",
			Subsystem: "execution",
			Name:      "suppressed_errors_total",
			Help:      "Trigger errors not logged because of rate limiting",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.points, m.triggers, m.triggerDuration, m.actors, m.flushes, m.suppressedLogs)
	}
	return m
}

func (m *Metrics) point(outcome string) {
	if m != nil {
		m.points.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) trigger(template, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(template, outcome).Inc()
	m.triggerDuration.WithLabelValues(template).Observe(seconds)
}

func (m *Metrics) setActors(n int) {
	if m != nil {
		m.actors.Set(float64(n))
	}
}

func (m *Metrics) flushed(outcome string, n int) {
	if m != nil {
		m.flushes.WithLabelValues(outcome).Add(float64(n))
	}
}

func (m *Metrics) suppressed() {
	if m != nil {
		m.suppressedLogs.Inc()
	}
}
