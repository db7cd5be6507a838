package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions        *prometheus.CounterVec
	EventsEmitted    *prometheus.CounterVec
	Verifications    *prometheus.CounterVec
	EvaluateDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_flow_decisions_total",
			Help: "Total access decisions by reason",
		}, []string{"reason"}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_flow_events_total",
			Help: "Total request events emitted by status",
		}, []string{"status"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_flow_payment_verifications_total",
			Help: "Total payment verification attempts by result",
		}, []string{"result"}),
		EvaluateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tollgate_flow_evaluate_duration_ms",
			Help:    "Latency of policy evaluations in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
	}
}

func (m *Metrics) ObserveDecision(reason string) {
	m.Decisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveEvent(status string) {
	m.EventsEmitted.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveVerification(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvaluateDuration(d time.Duration) {
	m.EvaluateDuration.Observe(float64(d.Microseconds()) / 1000.0)
}
