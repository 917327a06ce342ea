package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes recorded in SubmissionsTotal.
const (
	OutcomeDelivered     = "delivered"
	OutcomeInvalid       = "invalid"
	OutcomeHoneypot      = "honeypot"
	OutcomeFailed        = "failed"
	OutcomeSwallowed     = "swallowed"
	OutcomeMisconfigured = "misconfigured"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contact", Name: "submissions_total", Help: "Contact form submissions by outcome."},
		[]string{"outcome"},
	)
	SinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contact",
			Name:      "sink_duration_seconds",
			Help:      "Time spent in a single sink delivery attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"sink", "result"},
	)
	RateLimitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contact", Name: "rate_limit_total", Help: "Rate limiter decisions by limiter type."},
		[]string{"limiter", "result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(SubmissionsTotal)
	reg.MustRegister(SinkDuration)
	reg.MustRegister(RateLimitTotal)
}
