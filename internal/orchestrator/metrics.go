package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asistan",
			Subsystem: "orchestrator",
			Name:      "requests_total",
			Help:      "Orchestrator operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "asistan",
			Subsystem: "orchestrator",
			Name:      "request_duration_seconds",
			Help:      "Orchestrator operation latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"op"},
	)

	regenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asistan",
			Subsystem: "orchestrator",
			Name:      "regenerations_total",
			Help:      "Quality-gate regenerations by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, regenerationsTotal)
}

func outcome(r Result) string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Cached:
		return "cached"
	}
	return "ok"
}
