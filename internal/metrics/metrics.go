package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the agent's prometheus counters. Delivery and persistence
// failures are counted rather than retried here; the numbers surface on the
// web server's /metrics endpoint.
type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	EvaluationCycles    prometheus.Counter
	PersistenceErrors   prometheus.Counter
	SampleErrors        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "servermonitor_notifications_sent_total",
			Help: "Telegram notifications delivered, by kind.",
		}, []string{"kind"}),
		NotificationsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "servermonitor_notifications_failed_total",
			Help: "Telegram notifications that failed all delivery attempts, by kind.",
		}, []string{"kind"}),
		EvaluationCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "servermonitor_evaluation_cycles_total",
			Help: "Completed evaluation cycles.",
		}),
		PersistenceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "servermonitor_persistence_errors_total",
			Help: "Alert record writes that failed.",
		}),
		SampleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "servermonitor_sample_errors_total",
			Help: "Metric samples that failed and skipped their cycle, by resource.",
		}, []string{"resource"}),
	}
}

// NewDefault registers on the default prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
