package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the manager's Prometheus instruments.
type Metrics struct {
	Scheduled    prometheus.Counter
	Starts       prometheus.Counter
	Retries      *prometheus.CounterVec
	Terminations *prometheus.CounterVec
	Active       prometheus.Gauge
}

// NewMetrics registers the manager's metrics with reg. A nil reg uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Scheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "loopcast",
			Name:      "sessions_scheduled_total",
			Help:      "Schedule requests accepted by the stream manager",
		}),
		Starts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "loopcast",
			Name:      "process_starts_total",
			Help:      "Encoder processes that reached the running state",
		}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopcast",
			Name:      "session_retries_total",
			Help:      "Retries scheduled after abnormal encoder exits",
		}, []string{"class"}),
		Terminations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopcast",
			Name:      "session_terminations_total",
			Help:      "Sessions removed from the manager, by outcome",
		}, []string{"outcome"}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "loopcast",
			Name:      "sessions_active",
			Help:      "Sessions with a running encoder process",
		}),
	}
}
